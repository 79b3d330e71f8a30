package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/goevery/collabtodo/internal/models"
	"github.com/goevery/collabtodo/internal/persistence"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type User struct {
	Id           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"passwordHash"`
	CreateTime   time.Time `bson:"createTime"`
	UpdateTime   time.Time `bson:"updateTime"`
}

type Task struct {
	Id          string     `bson:"_id"`
	Title       string     `bson:"title"`
	Description *string    `bson:"description,omitempty"`
	IsCompleted bool       `bson:"isCompleted"`
	CreatedBy   string     `bson:"createdBy"`
	DueDate     *time.Time `bson:"dueDate,omitempty"`
	Priority    int        `bson:"priority"`
	Category    *string    `bson:"category,omitempty"`
	CreateTime  time.Time  `bson:"createTime"`
	UpdateTime  time.Time  `bson:"updateTime"`
}

type Share struct {
	Id         string    `bson:"_id"`
	TaskId     string    `bson:"taskId"`
	SharedWith string    `bson:"sharedWith"`
	Permission string    `bson:"permission"`
	SharedBy   string    `bson:"sharedBy"`
	CreateTime time.Time `bson:"createTime"`
}

type PersistenceEngine struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection
	shares *mongo.Collection
}

func NewPersistenceEngine(client *mongo.Client, databaseName string) *PersistenceEngine {
	database := client.Database(databaseName)

	return &PersistenceEngine{
		client: client,
		users:  database.Collection("users"),
		tasks:  database.Collection("tasks"),
		shares: database.Collection("shares"),
	}
}

func Open(ctx context.Context, uri string, databaseName string) (*PersistenceEngine, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return NewPersistenceEngine(client, databaseName), nil
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	_, err := e.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return err
	}

	_, err = e.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "createdBy", Value: 1},
			{Key: "createTime", Value: -1},
		},
	})
	if err != nil {
		return err
	}

	_, err = e.shares.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "taskId", Value: 1},
				{Key: "sharedWith", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "sharedWith", Value: 1},
				{Key: "createTime", Value: -1},
			},
		},
	})

	return err
}

func (e *PersistenceEngine) Close(ctx context.Context) error {
	return e.client.Disconnect(ctx)
}

func (e *PersistenceEngine) CreateUser(ctx context.Context, user models.User) error {
	_, err := e.users.InsertOne(ctx, User{
		Id:           user.Id,
		Email:        user.Email,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreateTime:   user.CreatedAt,
		UpdateTime:   user.UpdatedAt,
	})

	return mapError(err)
}

func (e *PersistenceEngine) FindUserById(ctx context.Context, id string) (models.User, error) {
	return e.findUser(ctx, bson.M{"_id": id})
}

func (e *PersistenceEngine) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return e.findUser(ctx, bson.M{"email": email})
}

func (e *PersistenceEngine) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	return e.findUser(ctx, bson.M{"username": username})
}

func (e *PersistenceEngine) findUser(ctx context.Context, filter bson.M) (models.User, error) {
	var user User
	err := e.users.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		return models.User{}, mapError(err)
	}

	return user.toModel(), nil
}

func (e *PersistenceEngine) SearchUsers(ctx context.Context, query string, excludeUserId string) ([]models.User, error) {
	pattern := bson.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{
		"_id": bson.M{"$ne": excludeUserId},
		"$or": bson.A{
			bson.M{"email": pattern},
			bson.M{"username": pattern},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetLimit(persistence.MaxUserSearchResults)

	result, err := e.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var mongoUsers []User
	err = result.All(ctx, &mongoUsers)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, len(mongoUsers))
	for i, u := range mongoUsers {
		users[i] = u.toModel()
	}

	return users, nil
}

func (e *PersistenceEngine) CreateTask(ctx context.Context, task models.Task) error {
	_, err := e.tasks.InsertOne(ctx, taskFromModel(task))

	return mapError(err)
}

func (e *PersistenceEngine) FindTask(ctx context.Context, id string) (models.Task, error) {
	var task Task
	err := e.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if err != nil {
		return models.Task{}, mapError(err)
	}

	return task.toModel(), nil
}

func (e *PersistenceEngine) ListTasksByOwner(ctx context.Context, ownerId string, page persistence.Page) ([]models.Task, int, error) {
	filter := bson.M{"createdBy": ownerId}

	total, err := e.tasks.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createTime", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))

	result, err := e.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	var mongoTasks []Task
	err = result.All(ctx, &mongoTasks)
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]models.Task, len(mongoTasks))
	for i, t := range mongoTasks {
		tasks[i] = t.toModel()
	}

	return tasks, int(total), nil
}

func (e *PersistenceEngine) UpdateTask(ctx context.Context, task models.Task) error {
	result, err := e.tasks.ReplaceOne(ctx, bson.M{"_id": task.Id}, taskFromModel(task))
	if err != nil {
		return mapError(err)
	}

	if result.MatchedCount == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

func (e *PersistenceEngine) DeleteTask(ctx context.Context, id string) error {
	result, err := e.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return persistence.ErrNotFound
	}

	_, err = e.shares.DeleteMany(ctx, bson.M{"taskId": id})

	return err
}

func (e *PersistenceEngine) CreateShare(ctx context.Context, share models.Share) error {
	_, err := e.shares.InsertOne(ctx, Share{
		Id:         share.Id,
		TaskId:     share.TaskId,
		SharedWith: share.SharedWith,
		Permission: string(share.Permission),
		SharedBy:   share.SharedBy,
		CreateTime: share.CreatedAt,
	})

	return mapError(err)
}

func (e *PersistenceEngine) FindShare(ctx context.Context, id string) (models.Share, error) {
	return e.findShare(ctx, bson.M{"_id": id})
}

func (e *PersistenceEngine) FindShareByTaskAndUser(ctx context.Context, taskId string, userId string) (models.Share, error) {
	return e.findShare(ctx, bson.M{"taskId": taskId, "sharedWith": userId})
}

func (e *PersistenceEngine) findShare(ctx context.Context, filter bson.M) (models.Share, error) {
	var share Share
	err := e.shares.FindOne(ctx, filter).Decode(&share)
	if err != nil {
		return models.Share{}, mapError(err)
	}

	return share.toModel(), nil
}

func (e *PersistenceEngine) ListSharesByTask(ctx context.Context, taskId string) ([]models.Share, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createTime", Value: -1}})

	return e.findShares(ctx, bson.M{"taskId": taskId}, opts)
}

func (e *PersistenceEngine) ListSharesBySharedWith(ctx context.Context, userId string, page persistence.Page) ([]models.Share, int, error) {
	filter := bson.M{"sharedWith": userId}

	total, err := e.shares.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createTime", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))

	shares, err := e.findShares(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	return shares, int(total), nil
}

func (e *PersistenceEngine) findShares(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]models.Share, error) {
	result, err := e.shares.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var mongoShares []Share
	err = result.All(ctx, &mongoShares)
	if err != nil {
		return nil, err
	}

	shares := make([]models.Share, len(mongoShares))
	for i, s := range mongoShares {
		shares[i] = s.toModel()
	}

	return shares, nil
}

func (e *PersistenceEngine) DeleteShare(ctx context.Context, id string) error {
	result, err := e.shares.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

func (u User) toModel() models.User {
	return models.User{
		Id:           u.Id,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreateTime,
		UpdatedAt:    u.UpdateTime,
	}
}

func taskFromModel(task models.Task) Task {
	return Task{
		Id:          task.Id,
		Title:       task.Title,
		Description: task.Description,
		IsCompleted: task.IsCompleted,
		CreatedBy:   task.CreatedBy,
		DueDate:     task.DueDate,
		Priority:    task.Priority,
		Category:    task.Category,
		CreateTime:  task.CreatedAt,
		UpdateTime:  task.UpdatedAt,
	}
}

func (t Task) toModel() models.Task {
	return models.Task{
		Id:          t.Id,
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
		CreatedBy:   t.CreatedBy,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Category:    t.Category,
		CreatedAt:   t.CreateTime,
		UpdatedAt:   t.UpdateTime,
	}
}

func (s Share) toModel() models.Share {
	return models.Share{
		Id:         s.Id,
		TaskId:     s.TaskId,
		SharedWith: s.SharedWith,
		Permission: models.Permission(s.Permission),
		SharedBy:   s.SharedBy,
		CreatedAt:  s.CreateTime,
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return persistence.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return persistence.ErrAlreadyExists
	default:
		return err
	}
}
