// Package mongo persists AgentRegistry definitions to MongoDB for
// long-lived deployments. This is registry persistence, not workflow-run
// persistence: a run's own scheduling state is never written here.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/meshwave/agentwave/types"
)

// Registry is a MongoDB-backed AgentRegistry.
type Registry struct {
	collection *mongo.Collection
}

var _ types.AgentRegistry = (*Registry)(nil)

// agentDocument is the MongoDB document representation of an
// AgentDefinition, keyed by agent name.
type agentDocument struct {
	Name                 string `bson:"_id"`
	SystemPromptTemplate string `bson:"system_prompt_template"`
	DefaultModel         string `bson:"default_model"`
}

// New creates a Registry backed by collection. The collection should come
// from a connected mongo.Client.
func New(collection *mongo.Collection) *Registry {
	return &Registry{collection: collection}
}

// Save upserts the definition for name.
func (r *Registry) Save(ctx context.Context, name string, def types.AgentDefinition) error {
	doc := agentDocument{Name: name, SystemPromptTemplate: def.SystemPromptTemplate, DefaultModel: def.DefaultModel}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": name}, doc, opts)
	if err != nil {
		return fmt.Errorf("mongodb save agent %q: %w", name, err)
	}
	return nil
}

// Delete removes the definition for name, if present.
func (r *Registry) Delete(ctx context.Context, name string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("mongodb delete agent %q: %w", name, err)
	}
	return nil
}

// Resolve implements types.AgentRegistry.
func (r *Registry) Resolve(ctx context.Context, name string) (types.AgentDefinition, error) {
	var doc agentDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.AgentDefinition{}, types.ErrAgentNotFound
		}
		return types.AgentDefinition{}, fmt.Errorf("mongodb resolve agent %q: %w", name, err)
	}
	return types.AgentDefinition{SystemPromptTemplate: doc.SystemPromptTemplate, DefaultModel: doc.DefaultModel}, nil
}
