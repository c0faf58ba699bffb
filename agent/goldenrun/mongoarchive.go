package goldenrun

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"
)

// MongoArchive is a secondary durable archive for golden-run reports,
// letting an operator query reports at scale instead of only reading the
// on-disk JSON file directly. It implements the Archive interface consumed
// by Recorder and health.Pinger so it can be wired into a readiness probe.
type MongoArchive struct {
	mongo   *mongodriver.Client
	coll    archiveCollection
	timeout time.Duration
}

// MongoArchiveOptions configures NewMongoArchive.
type MongoArchiveOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

const (
	defaultArchiveCollection = "golden_run_reports"
	defaultArchiveTimeout    = 5 * time.Second
	archiveClientName        = "goldenrun-mongo"
)

// NewMongoArchive returns an Archive backed by the provided MongoDB client,
// ensuring a unique index on run_id exists before returning.
func NewMongoArchive(opts MongoArchiveOptions) (*MongoArchive, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultArchiveCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultArchiveTimeout
	}

	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wrapper := mongoArchiveCollection{coll: mcoll}
	if err := ensureArchiveIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return &MongoArchive{mongo: opts.Client, coll: wrapper, timeout: timeout}, nil
}

// Name identifies this client to a health.Pinger-aware supervisor.
func (a *MongoArchive) Name() string { return archiveClientName }

// Ping verifies connectivity to the archive's Mongo deployment.
func (a *MongoArchive) Ping(ctx context.Context) error {
	return a.mongo.Ping(ctx, readpref.Primary())
}

// Upsert replaces the archived document for report.RunID, or inserts it if
// absent.
func (a *MongoArchive) Upsert(ctx context.Context, report *Report) error {
	if report == nil || report.RunID == "" {
		return errors.New("report with run id is required")
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	_, err := a.coll.ReplaceOne(ctx,
		archiveFilter{RunID: report.RunID},
		report,
		options.Replace().SetUpsert(true),
	)
	return err
}

// GetByRunID looks up a single archived report by run id.
func (a *MongoArchive) GetByRunID(ctx context.Context, runID string) (*Report, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	cur, err := a.coll.Find(ctx, archiveFilter{RunID: runID}, options.Find().SetLimit(1))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		return nil, nil
	}
	var rep Report
	if err := cur.Decode(&rep); err != nil {
		return nil, err
	}
	return rep.Normalize(), nil
}

func (a *MongoArchive) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

// archiveFilter is the stable query/replace key: one archived document per
// run id.
type archiveFilter struct {
	RunID string `bson:"run_id"`
}

func ensureArchiveIndexes(ctx context.Context, coll archiveCollection) error {
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

// archiveCollection, archiveCursor, and archiveIndexView narrow the concrete
// driver types to the operations this archive needs, so tests can stand
// in in-memory fakes without a live server.
type archiveCollection interface {
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (archiveCursor, error)
	Indexes() archiveIndexView
}

type archiveIndexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type archiveCursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

type mongoArchiveCollection struct {
	coll *mongodriver.Collection
}

func (c mongoArchiveCollection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

func (c mongoArchiveCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (archiveCursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoArchiveCursor{cur: cur}, nil
}

func (c mongoArchiveCollection) Indexes() archiveIndexView {
	return mongoArchiveIndexView{view: c.coll.Indexes()}
}

type mongoArchiveCursor struct{ cur *mongodriver.Cursor }

func (c mongoArchiveCursor) Next(ctx context.Context) bool     { return c.cur.Next(ctx) }
func (c mongoArchiveCursor) Decode(val any) error               { return c.cur.Decode(val) }
func (c mongoArchiveCursor) Err() error                          { return c.cur.Err() }
func (c mongoArchiveCursor) Close(ctx context.Context) error     { return c.cur.Close(ctx) }

type mongoArchiveIndexView struct{ view mongodriver.IndexView }

func (v mongoArchiveIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}

var _ health.Pinger = (*MongoArchive)(nil)
