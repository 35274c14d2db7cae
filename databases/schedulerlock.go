package databases

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const schedulerLockName = "scheduler_locks"

// SchedulerLockDatabase is a mongo-backed lock so only one server instance
// runs a given background job at a time.
type SchedulerLockDatabase interface {
	Acquire(ctx context.Context, job, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job, owner string) error
}

type schedulerLockDatabase struct {
	db DatabaseHelper
}

// NewSchedulerLockDatabase initializes a new instance of scheduler lock database with the provided db connection
func NewSchedulerLockDatabase(db DatabaseHelper) SchedulerLockDatabase {
	return &schedulerLockDatabase{
		db: db,
	}
}

// Acquire takes the named lock for owner if it is free or expired. The upsert
// races on _id, so a losing instance sees a duplicate-key error rather than a
// second lock document.
func (s *schedulerLockDatabase) Acquire(ctx context.Context, job, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	filter := bson.M{
		"_id": job,
		"$or": []bson.M{
			{"expiresAt": bson.M{"$lt": now}},
			{"owner": owner},
		},
	}
	update := bson.M{"$set": bson.M{"owner": owner, "expiresAt": now.Add(ttl)}}

	upsert := true
	_, err := s.db.Collection(schedulerLockName).UpdateOne(ctx, filter, update, &options.UpdateOptions{Upsert: &upsert})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *schedulerLockDatabase) Release(ctx context.Context, job, owner string) error {
	return s.db.Collection(schedulerLockName).DeleteOne(ctx, bson.M{"_id": job, "owner": owner})
}
