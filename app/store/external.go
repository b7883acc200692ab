package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// External implements Interface with a MongoDB database. Identifiers are
// server-native ObjectIDs normalized to hex strings so callers see the same
// shape as from the embedded backend. Collections are created with $jsonSchema
// validators generated from the record structs.
type External struct {
	client *mongo.Client
	db     *mongo.Database
}

// wrappers adding the native _id to the shared record types

type mongoUser struct {
	MID  primitive.ObjectID `bson:"_id,omitempty"`
	User `bson:",inline"`
}

type mongoTask struct {
	MID  primitive.ObjectID `bson:"_id,omitempty"`
	Task `bson:",inline"`
}

type mongoWebhook struct {
	MID     primitive.ObjectID `bson:"_id,omitempty"`
	Webhook `bson:",inline"`
}

// NewExternal connects to mongo at the given url, verifies the connection with
// a ping and prepares schema-validated collections. Returns an error if the
// server is unreachable, the caller decides whether to fall back.
func NewExternal(ctx context.Context, url, dbName string) (*External, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		if dcErr := client.Disconnect(ctx); dcErr != nil {
			log.Printf("[WARN] failed to disconnect after ping failure: %v", dcErr)
		}
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	e := &External{client: client, db: client.Database(dbName)}
	if err := e.ensureCollections(ctx); err != nil {
		if dcErr := client.Disconnect(ctx); dcErr != nil {
			log.Printf("[WARN] failed to disconnect after collection setup failure: %v", dcErr)
		}
		return nil, fmt.Errorf("failed to prepare collections: %w", err)
	}
	return e, nil
}

// ensureCollections creates missing collections with validators generated from
// the record structs. Existing collections are left as is.
func (e *External) ensureCollections(ctx context.Context) error {
	existing, err := e.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	present := map[string]bool{}
	for _, name := range existing {
		present[name] = true
	}

	for name, record := range map[string]any{"users": User{}, "tasks": Task{}, "webhooks": Webhook{}} {
		if present[name] {
			continue
		}
		schema, err := collectionSchema(record)
		if err != nil {
			return fmt.Errorf("failed to build schema for %s: %w", name, err)
		}
		opts := options.CreateCollection().SetValidator(bson.M{"$jsonSchema": schema})
		if err := e.db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		log.Printf("[DEBUG] created mongo collection %s with schema validator", name)
	}
	return nil
}

// FindUserByEmail returns the user with the exact email, ErrNotFound if absent
func (e *External) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var doc mongoUser
	err := e.db.Collection("users").FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to find user by email: %w", err)
	}
	user := doc.User
	user.ID = doc.MID.Hex()
	return user, nil
}

// CreateUser inserts a new user with a server-generated identifier and default
// free plan. Email uniqueness is the caller's responsibility.
func (e *External) CreateUser(ctx context.Context, email, passwordHash, name string) (User, error) {
	user := User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Plan:         "free",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond), // bson datetime holds milliseconds only
	}
	res, err := e.db.Collection("users").InsertOne(ctx, mongoUser{User: user})
	if err != nil {
		return User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return user, nil
}

// ListTasks returns tasks owned by ownerID
func (e *External) ListTasks(ctx context.Context, ownerID string) ([]Task, error) {
	cursor, err := e.db.Collection("tasks").Find(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	var docs []mongoTask
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	tasks := make([]Task, 0, len(docs))
	for _, doc := range docs {
		task := doc.Task
		task.ID = doc.MID.Hex()
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// CreateTask inserts a new task owned by ownerID
func (e *External) CreateTask(ctx context.Context, ownerID, title, schedule string, enabled bool) (Task, error) {
	task := Task{
		OwnerID:   ownerID,
		Title:     title,
		Schedule:  schedule,
		Enabled:   enabled,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	res, err := e.db.Collection("tasks").InsertOne(ctx, mongoTask{Task: task})
	if err != nil {
		return Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	task.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return task, nil
}

// PatchTask merges non-nil patch fields into the task via findOneAndUpdate
// scoped by ownership. ErrNotFound covers absent, foreign and malformed ids.
func (e *External) PatchTask(ctx context.Context, ownerID, id string, patch TaskPatch) (Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Task{}, ErrNotFound
	}

	fields := bson.M{}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Schedule != nil {
		fields["schedule"] = *patch.Schedule
	}
	if patch.Enabled != nil {
		fields["enabled"] = *patch.Enabled
	}

	filter := bson.M{"_id": oid, "ownerId": ownerID}
	var doc mongoTask

	if len(fields) == 0 { // nothing to change, plain ownership-scoped read
		err = e.db.Collection("tasks").FindOne(ctx, filter).Decode(&doc)
	} else {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		err = e.db.Collection("tasks").FindOneAndUpdate(ctx, filter, bson.M{"$set": fields}, opts).Decode(&doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to update task: %w", err)
	}

	task := doc.Task
	task.ID = doc.MID.Hex()
	return task, nil
}

// DeleteTask removes the task scoped by ownership, ErrNotFound if nothing matched
func (e *External) DeleteTask(ctx context.Context, ownerID, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := e.db.Collection("tasks").DeleteOne(ctx, bson.M{"_id": oid, "ownerId": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateWebhook inserts a new webhook owned by ownerID
func (e *External) CreateWebhook(ctx context.Context, ownerID, url, event string) (Webhook, error) {
	wh := Webhook{
		OwnerID:   ownerID,
		URL:       url,
		Event:     event,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	res, err := e.db.Collection("webhooks").InsertOne(ctx, mongoWebhook{Webhook: wh})
	if err != nil {
		return Webhook{}, fmt.Errorf("failed to insert webhook: %w", err)
	}
	wh.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return wh, nil
}

// ListWebhooks returns webhooks owned by ownerID
func (e *External) ListWebhooks(ctx context.Context, ownerID string) ([]Webhook, error) {
	cursor, err := e.db.Collection("webhooks").Find(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	var docs []mongoWebhook
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read webhooks: %w", err)
	}
	webhooks := make([]Webhook, 0, len(docs))
	for _, doc := range docs {
		wh := doc.Webhook
		wh.ID = doc.MID.Hex()
		webhooks = append(webhooks, wh)
	}
	return webhooks, nil
}

// FindWebhook returns the webhook scoped by ownership, ErrNotFound if absent
func (e *External) FindWebhook(ctx context.Context, ownerID, id string) (Webhook, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Webhook{}, ErrNotFound
	}
	var doc mongoWebhook
	err = e.db.Collection("webhooks").FindOne(ctx, bson.M{"_id": oid, "ownerId": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Webhook{}, ErrNotFound
	}
	if err != nil {
		return Webhook{}, fmt.Errorf("failed to find webhook: %w", err)
	}
	wh := doc.Webhook
	wh.ID = doc.MID.Hex()
	return wh, nil
}

// Close disconnects the mongo client
func (e *External) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect mongo client: %w", err)
	}
	return nil
}
