package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/srlistener/internal/platform/websocket"
	"github.com/ehr/srlistener/internal/sr"
)

var (
	// ErrNoResults is returned by Latest before anything has been extracted.
	ErrNoResults = errors.New("no results yet")
	// ErrInvalidDocument wraps a tag document that is not a JSON object.
	ErrInvalidDocument = errors.New("invalid tag document")
	// ErrNoArchive is returned when instance processing is requested but no
	// archive client is configured.
	ErrNoArchive = errors.New("archive not configured")
)

// TagFetcher downloads the tag document of an archived instance.
type TagFetcher interface {
	InstanceTags(ctx context.Context, instanceID string) ([]byte, error)
}

// ResultSink mirrors the latest result to disk and keeps raw documents.
type ResultSink interface {
	Write(values map[string]string) error
	Read() (map[string]string, error)
	Archive(instanceID string, raw []byte) (string, error)
}

// Recorder receives one observation per pipeline run.
type Recorder interface {
	ObserveExtraction(source string, started time.Time, values int, err error)
}

type Option func(*Service)

func WithFetcher(f TagFetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

func WithResultSink(rs ResultSink) Option {
	return func(s *Service) { s.sink = rs }
}

func WithPublisher(p websocket.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service runs the extraction pipeline: fetch, archive, extract, store,
// mirror to the results file, publish. The latest extraction is held as an
// immutable snapshot that is swapped atomically.
type Service struct {
	repo    ExtractionRepository
	targets sr.TargetSet
	logger  zerolog.Logger

	fetcher   TagFetcher
	sink      ResultSink
	publisher websocket.EventPublisher
	recorder  Recorder

	// mu orders results-file writes with snapshot swaps so the file and
	// the snapshot always hold the same extraction.
	mu     sync.Mutex
	latest atomic.Pointer[Extraction]
}

func NewService(repo ExtractionRepository, targets sr.TargetSet, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		targets: targets,
		logger:  logger.With().Str("component", "extraction").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProcessInstance fetches an archived instance and runs it through the
// pipeline.
func (s *Service) ProcessInstance(ctx context.Context, instanceID string) (*Extraction, error) {
	if s.fetcher == nil {
		return nil, ErrNoArchive
	}
	started := time.Now()
	raw, err := s.fetcher.InstanceTags(ctx, instanceID)
	if err != nil {
		err = fmt.Errorf("fetch tags of %s: %w", instanceID, err)
		s.observe(SourceOrthanc, started, nil, err)
		return nil, err
	}

	if s.sink != nil {
		if path, err := s.sink.Archive(instanceID, raw); err != nil {
			s.logger.Warn().Err(err).Str("instance_id", instanceID).Msg("failed to archive tag document")
		} else if path != "" {
			s.logger.Debug().Str("instance_id", instanceID).Str("path", path).Msg("tag document archived")
		}
	}

	return s.run(ctx, instanceID, SourceOrthanc, raw, started)
}

// ExtractUpload runs a client-supplied tag document through the pipeline.
func (s *Service) ExtractUpload(ctx context.Context, raw []byte) (*Extraction, error) {
	return s.run(ctx, "", SourceUpload, raw, time.Now())
}

func (s *Service) run(ctx context.Context, instanceID string, source Source, raw []byte, started time.Time) (*Extraction, error) {
	doc, err := sr.Decode(raw)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		s.observe(source, started, nil, err)
		return nil, err
	}

	e := newExtraction(instanceID, source, sr.Extract(doc, s.targets))
	if err := s.repo.Create(ctx, e); err != nil {
		err = fmt.Errorf("store extraction: %w", err)
		s.observe(source, started, nil, err)
		return nil, err
	}

	snapshot, err := s.swapLatest(e)
	if err != nil {
		s.observe(source, started, nil, err)
		return nil, err
	}
	s.publish(ctx, snapshot)
	s.observe(source, started, snapshot, nil)

	s.logger.Info().
		Str("extraction_id", e.ID.String()).
		Str("instance_id", instanceID).
		Str("source", string(source)).
		Int("values", len(e.Values)).
		Dur("took", time.Since(started)).
		Msg("extraction stored")
	return e, nil
}

// swapLatest mirrors e to the results file and makes it the live snapshot.
func (s *Service) swapLatest(e *Extraction) (*Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Write(e.Values); err != nil {
			return nil, fmt.Errorf("write results file: %w", err)
		}
	}
	snapshot := copyExtraction(e)
	s.latest.Store(snapshot)
	return snapshot, nil
}

func (s *Service) publish(ctx context.Context, e *Extraction) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode extraction event")
		return
	}
	topics := []string{websocket.TopicExtractions}
	if e.InstanceID != "" {
		topics = append(topics, websocket.InstanceTopic(e.InstanceID))
	}
	for _, topic := range topics {
		evt := websocket.Event{
			Type:         "extraction.created",
			Topic:        topic,
			ExtractionID: e.ID.String(),
			InstanceID:   e.InstanceID,
			Timestamp:    e.CreatedAt,
			Data:         data,
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish extraction")
		}
	}
}

func (s *Service) observe(source Source, started time.Time, e *Extraction, err error) {
	if s.recorder == nil {
		return
	}
	n := 0
	if e != nil {
		n = len(e.Values)
	}
	s.recorder.ObserveExtraction(string(source), started, n, err)
}

// Latest returns the most recent result. Before the first extraction of this
// process it falls back to a results file left by a previous run.
func (s *Service) Latest() (sr.Result, error) {
	if e := s.latest.Load(); e != nil {
		return e.Values.Clone(), nil
	}
	if s.sink == nil {
		return nil, ErrNoResults
	}
	values, err := s.sink.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoResults
		}
		return nil, err
	}
	return sr.Result(values), nil
}

func (s *Service) GetExtraction(ctx context.Context, id uuid.UUID) (*Extraction, error) {
	return s.repo.GetByID(ctx, id)
}

// ListExtractions lists newest first, optionally for one instance.
func (s *Service) ListExtractions(ctx context.Context, instanceID string, limit, offset int) ([]*Extraction, int, error) {
	if instanceID != "" {
		return s.repo.ListByInstance(ctx, instanceID, limit, offset)
	}
	return s.repo.List(ctx, limit, offset)
}

// Ping reports store health.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
