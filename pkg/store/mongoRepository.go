package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
)

// MongoRepository is the document-store backend, for deployments whose
// CRM exports leads into MongoDB instead of a SQL database. Leads live
// in the "leads" collection, attempt records in "lead_status".
type MongoRepository struct {
	client     *mongo.Client
	database   string
	maxRetries int
	owners     []string
	retryPause time.Duration
}

func NewMongoRepository(client *mongo.Client, database string, maxRetries int, owners []string) *MongoRepository {
	return &MongoRepository{
		client:     client,
		database:   database,
		maxRetries: maxRetries,
		owners:     owners,
		retryPause: 10 * time.Second,
	}
}

func (m *MongoRepository) leads() *mongo.Collection {
	return m.client.Database(m.database).Collection("leads")
}

func (m *MongoRepository) status() *mongo.Collection {
	return m.client.Database(m.database).Collection("lead_status")
}

func campusMatch(campuses []string) bson.A {
	var or bson.A
	var named []string
	for _, c := range campuses {
		switch c {
		case CampusNull:
			or = append(or, bson.M{"campus": nil})
		case CampusNil:
			or = append(or, bson.M{"campus": CampusNil})
		default:
			named = append(named, c)
		}
	}
	if len(named) > 0 {
		or = append(or, bson.M{"campus": bson.M{"$in": named}})
	}
	return or
}

func (m *MongoRepository) FetchPending(ctx context.Context, campuses []string, batchSize int) ([]Lead, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "FetchPending")
	defer span.End()
	start := time.Now()

	match := bson.M{
		"phone":   bson.M{"$nin": bson.A{nil, ""}},
		"program": bson.M{"$ne": nil},
	}
	if or := campusMatch(campuses); len(or) > 0 {
		match["$or"] = or
	} else {
		match["campus"] = bson.M{"$in": bson.A{}}
	}
	if len(m.owners) > 0 {
		match["owner_name"] = bson.M{"$in": m.owners}
	}

	// Status docs store phones without '+' and NULL campuses as the
	// 'NULL' bucket, mirroring the SQL backend's join normalization.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$addFields", Value: bson.M{
			"norm_phone":  bson.M{"$replaceAll": bson.M{"input": bson.M{"$trim": bson.M{"input": "$phone"}}, "find": "+", "replacement": ""}},
			"norm_campus": bson.M{"$ifNull": bson.A{"$campus", CampusNull}},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from": "lead_status",
			"let":  bson.M{"p": "$norm_phone", "pr": "$program", "c": "$norm_campus"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$phone", "$$p"}},
					bson.M{"$eq": bson.A{"$program", "$$pr"}},
					bson.M{"$eq": bson.A{"$campus", "$$c"}},
				}}}},
			},
			"as": "records",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"attempts": bson.M{"$size": "$records"},
			"closed": bson.M{"$gt": bson.A{bson.M{"$size": bson.M{"$filter": bson.M{
				"input": "$records",
				"as":    "r",
				"cond":  bson.M{"$in": bson.A{"$$r.status", bson.A{string(StatusSent), string(StatusNotFound)}}},
			}}}, 0}},
		}}},
		{{Key: "$match", Value: bson.M{
			"closed":   false,
			"attempts": bson.M{"$lte": m.maxRetries},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "attempts", Value: 1}, {Key: "phone", Value: 1}}}},
		{{Key: "$limit", Value: batchSize}},
	}

	cursor, err := m.leads().Aggregate(ctx, pipeline)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch pending leads: %w", err)
	}
	defer cursor.Close(ctx)

	var leads []Lead
	for cursor.Next(ctx) {
		var doc struct {
			Phone      string `bson:"phone"`
			Name       string `bson:"first_name"`
			OwnerName  string `bson:"owner_name"`
			Program    string `bson:"program"`
			NormCampus string `bson:"norm_campus"`
			Attempts   int    `bson:"attempts"`
		}
		if err := cursor.Decode(&doc); err != nil {
			span.RecordError(err)
			return nil, err
		}
		leads = append(leads, Lead{
			Phone:     doc.Phone,
			Name:      doc.Name,
			OwnerName: doc.OwnerName,
			Program:   doc.Program,
			Campus:    doc.NormCampus,
			Attempts:  doc.Attempts,
		})
	}
	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "mongodb", "FetchPending", len(leads), time.Since(start))
	return leads, nil
}

func (m *MongoRepository) Append(ctx context.Context, rec AttemptRecord) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "AppendStatus")
	defer span.End()
	start := time.Now()

	if _, err := ParseStatus(string(rec.Status)); err != nil {
		span.RecordError(err)
		return err
	}

	doc := bson.M{
		"lead_name":            rec.LeadName,
		"phone":                rec.Phone,
		"program":              rec.Program,
		"degree_awarding_body": rec.DegreeAwardingBody,
		"campus":               rec.Campus,
		"status":               string(rec.Status),
		"created_at":           rec.Timestamp,
	}

	var err error
	for attempt := 1; attempt <= appendRetries; attempt++ {
		if _, err = m.status().InsertOne(ctx, doc); err == nil {
			addDBStatsToSpan(span, "mongodb", "AppendStatus", 1, time.Since(start))
			return nil
		}
		if attempt < appendRetries {
			select {
			case <-time.After(m.retryPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	span.RecordError(err)
	return fmt.Errorf("append lead status: %w", err)
}

func (m *MongoRepository) HasSent(ctx context.Context, key LeadKey) (bool, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "HasSent")
	defer span.End()

	filter := bson.M{
		"phone":   key.Phone,
		"program": key.Program,
		"campus":  key.Campus,
		"status":  string(StatusSent),
	}
	err := m.status().FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("has sent: %w", err)
	}
	return true, nil
}

func (m *MongoRepository) DailyStats(ctx context.Context, t time.Time) ([]StatusCount, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "DailyStats")
	defer span.End()
	start := time.Now()

	from, to := dayBounds(t)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"created_at": bson.M{"$gte": from, "$lt": to}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"campus": "$campus", "status": "$status"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := m.status().Aggregate(ctx, pipeline)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	defer cursor.Close(ctx)

	var stats []StatusCount
	for cursor.Next(ctx) {
		var doc struct {
			ID struct {
				Campus string `bson:"campus"`
				Status string `bson:"status"`
			} `bson:"_id"`
			Count int `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			span.RecordError(err)
			return nil, err
		}
		status, err := ParseStatus(doc.ID.Status)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		stats = append(stats, StatusCount{Campus: doc.ID.Campus, Status: status, Count: doc.Count})
	}
	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "mongodb", "DailyStats", len(stats), time.Since(start))
	return stats, nil
}
