package databases

// go generate: mockery --name EmergencyDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medirush/medirush-api/models"
)

const emergencyName = "emergencies"

// EmergencyDatabase contains the methods to use with the emergency request
// database. FindOneAndUpdate is how status transitions are applied: the
// filter includes the expected prior status, so a stale writer gets
// mongo.ErrNoDocuments back instead of clobbering a newer state.
type EmergencyDatabase interface {
	FindOne(context.Context, interface{}, ...*options.FindOneOptions) (*models.EmergencyRequest, error)
	Find(context.Context, interface{}, ...*options.FindOptions) ([]models.EmergencyRequest, error)
	FindPage(ctx context.Context, filter interface{}, limit, page int) ([]models.EmergencyRequest, error)
	InsertOne(context.Context, interface{}, ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(context.Context, interface{}, interface{}, ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOneAndUpdate(context.Context, interface{}, interface{}, ...*options.FindOneAndUpdateOptions) (*models.EmergencyRequest, error)
	DeleteOne(context.Context, interface{}, ...*options.DeleteOptions) error
}

type emergencyDatabase struct {
	db DatabaseHelper
}

// NewEmergencyDatabase initializes a new instance of emergency database with the provided db connection
func NewEmergencyDatabase(db DatabaseHelper) EmergencyDatabase {
	return &emergencyDatabase{
		db: db,
	}
}

func (c *emergencyDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.EmergencyRequest, error) {
	emergency := &models.EmergencyRequest{}
	err := c.db.Collection(emergencyName).FindOne(ctx, filter, opts...).Decode(&emergency)
	if err != nil {
		return nil, err
	}
	return emergency, nil
}

func (c *emergencyDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.EmergencyRequest, error) {
	var emergencies []models.EmergencyRequest
	cr := c.db.Collection(emergencyName).Find(ctx, filter, opts...)
	err := cr.Decode(&emergencies)
	if err != nil {
		return nil, err
	}
	return emergencies, nil
}

func (c *emergencyDatabase) FindPage(ctx context.Context, filter interface{}, limit, page int) ([]models.EmergencyRequest, error) {
	return c.Find(ctx, filter, newMongoPaginate(limit, page).getPaginatedOpts())
}

func (c *emergencyDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res := c.db.Collection(emergencyName).InsertOne(ctx, document, opts...)
	return res, nil
}

func (c *emergencyDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.db.Collection(emergencyName).UpdateOne(ctx, filter, update, opts...)
}

func (c *emergencyDatabase) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) (*models.EmergencyRequest, error) {
	emergency := &models.EmergencyRequest{}
	err := c.db.Collection(emergencyName).FindOneAndUpdate(ctx, filter, update, opts...).Decode(&emergency)
	if err != nil {
		return nil, err
	}
	return emergency, nil
}

func (c *emergencyDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) error {
	return c.db.Collection(emergencyName).DeleteOne(ctx, filter, opts...)
}
