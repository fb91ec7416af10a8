package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/github"
	"github.com/ethpandaops/gheregistry/pkg/store"
	"github.com/sirupsen/logrus"
)

// Field names as they appear in requests and field errors.
const (
	FieldName   = "name"
	FieldAPIURL = "apiUrl"
)

// Create outcomes, as reported to Metrics.
const (
	ResultCreated       = "created"
	ResultMissing       = "missing"
	ResultInvalid       = "invalid"
	ResultAlreadyExists = "already_exists"
	ResultError         = "error"
)

var serverIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// EventType identifies a registry change.
type EventType string

const (
	EventServerCreated EventType = "server_created"
	EventServerDeleted EventType = "server_deleted"
)

// ChangeCallback is called after a server is created or deleted.
type ChangeCallback func(event EventType, server *store.Server)

// CreateRequest is the body of a create call. Surrounding whitespace is
// ignored; a blank field counts as missing.
type CreateRequest struct {
	Name   string `json:"name"`
	APIURL string `json:"apiUrl"`
}

// Metrics records registry activity.
type Metrics interface {
	RecordCreate(result string)
	SetServersRegistered(count int)
}

// Service validates and stores GitHub Enterprise server registrations.
type Service interface {
	Start(ctx context.Context) error
	Stop() error

	Create(ctx context.Context, req CreateRequest, actor string) (*store.Server, error)
	List(ctx context.Context) ([]*store.Server, error)
	Get(ctx context.Context, id string) (*store.Server, error)
	Delete(ctx context.Context, id, actor string) error

	SetChangeCallback(cb ChangeCallback)
}

// service implements Service.
type service struct {
	log     logrus.FieldLogger
	store   store.Store
	prober  github.Prober
	metrics Metrics

	// createMu serializes the uniqueness check and insert of every create.
	createMu sync.Mutex

	cbMu           sync.RWMutex
	changeCallback ChangeCallback
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new registry service.
func NewService(log logrus.FieldLogger, st store.Store, prober github.Prober, m Metrics) Service {
	return &service{
		log:     log.WithField("component", "registry"),
		store:   st,
		prober:  prober,
		metrics: m,
	}
}

// Start initializes the registry service.
func (s *service) Start(ctx context.Context) error {
	s.log.Info("Starting registry service")

	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	s.setCount(len(servers))

	s.log.WithField("servers", len(servers)).Info("Registry service started")

	return nil
}

// Stop shuts down the registry service.
func (s *service) Stop() error {
	s.log.Info("Stopping registry service")

	return nil
}

// SetChangeCallback sets the callback for registry changes.
func (s *service) SetChangeCallback(cb ChangeCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.changeCallback = cb
}

func (s *service) notifyChange(event EventType, server *store.Server) {
	s.cbMu.RLock()
	cb := s.changeCallback
	s.cbMu.RUnlock()

	if cb != nil {
		cb(event, server)
	}
}

// Create validates req, probes its URL and stores the new server.
func (s *service) Create(ctx context.Context, req CreateRequest, actor string) (*store.Server, error) {
	name := strings.TrimSpace(req.Name)
	apiURL := strings.TrimSpace(req.APIURL)

	log := s.log.WithFields(logrus.Fields{
		"name":    name,
		"api_url": apiURL,
		"actor":   actor,
	})

	if errs := checkRequired(name, apiURL); len(errs) > 0 {
		s.recordCreate(ResultMissing)

		return nil, &ValidationError{Errors: errs}
	}

	// The probe can be slow, so it runs before taking the create lock.
	if _, err := s.prober.Probe(ctx, apiURL); err != nil {
		var probeErr *github.ProbeError
		if !errors.As(err, &probeErr) {
			s.recordCreate(ResultError)

			return nil, fmt.Errorf("probing %s: %w", apiURL, err)
		}

		s.recordCreate(ResultInvalid)
		log.WithField("reason", probeErr.Message).Info("Rejected server with invalid API URL")

		return nil, &ValidationError{Errors: []FieldError{{
			Field:   FieldAPIURL,
			Code:    CodeInvalid,
			Message: probeErr.Message,
		}}}
	}

	server := &store.Server{
		ID:        store.ServerID(apiURL),
		Name:      name,
		APIURL:    apiURL,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.insert(ctx, server); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.recordCreate(ResultAlreadyExists)
			log.Info("Rejected duplicate server")

			return nil, err
		}

		s.recordCreate(ResultError)

		return nil, err
	}

	s.recordCreate(ResultCreated)
	s.refreshCount(ctx)

	log.WithField("id", server.ID).Info("Registered GitHub server")

	s.notifyChange(EventServerCreated, server)

	return server, nil
}

// insert checks uniqueness and stores server under the create lock.
func (s *service) insert(ctx context.Context, server *store.Server) error {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	errs, err := s.checkUnique(ctx, server.Name, server.APIURL)
	if err != nil {
		return err
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	if err := s.store.CreateServer(ctx, server); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("creating server: %w", err)
		}

		// Another instance sharing the store won the race. Report it the
		// same way as a collision found by the check above.
		errs, checkErr := s.checkUnique(ctx, server.Name, server.APIURL)
		if checkErr != nil {
			return checkErr
		}

		if len(errs) == 0 {
			return fmt.Errorf("creating server: %w", err)
		}

		return &ValidationError{Errors: errs}
	}

	return nil
}

func checkRequired(name, apiURL string) []FieldError {
	var errs []FieldError

	if name == "" {
		errs = append(errs, FieldError{
			Field:   FieldName,
			Code:    CodeMissing,
			Message: "name is required",
		})
	}

	if apiURL == "" {
		errs = append(errs, FieldError{
			Field:   FieldAPIURL,
			Code:    CodeMissing,
			Message: "apiUrl is required",
		})
	}

	return errs
}

// checkUnique reports every collision with a registered server, name first.
func (s *service) checkUnique(ctx context.Context, name, apiURL string) ([]FieldError, error) {
	var errs []FieldError

	byName, err := s.store.GetServerByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("looking up server name: %w", err)
	}

	if byName != nil {
		errs = append(errs, FieldError{
			Field:   FieldName,
			Code:    CodeAlreadyExists,
			Message: fmt.Sprintf("name already exists for server at '%s'", byName.APIURL),
		})
	}

	byURL, err := s.store.GetServer(ctx, store.ServerID(apiURL))
	if err != nil {
		return nil, fmt.Errorf("looking up server url: %w", err)
	}

	if byURL != nil {
		errs = append(errs, FieldError{
			Field:   FieldAPIURL,
			Code:    CodeAlreadyExists,
			Message: fmt.Sprintf("apiUrl is already registered as '%s'", byURL.Name),
		})
	}

	return errs, nil
}

// List returns every registered server in registration order.
func (s *service) List(ctx context.Context) ([]*store.Server, error) {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}

	if servers == nil {
		servers = []*store.Server{}
	}

	return servers, nil
}

// Get returns the server with id, or ErrNotFound.
func (s *service) Get(ctx context.Context, id string) (*store.Server, error) {
	if !serverIDPattern.MatchString(id) {
		return nil, ErrNotFound
	}

	server, err := s.store.GetServer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting server: %w", err)
	}

	if server == nil {
		return nil, ErrNotFound
	}

	return server, nil
}

// Delete removes the server with id, or returns ErrNotFound.
func (s *service) Delete(ctx context.Context, id, actor string) error {
	server, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	s.createMu.Lock()
	err = s.store.DeleteServer(ctx, id)
	s.createMu.Unlock()

	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	s.refreshCount(ctx)

	s.log.WithFields(logrus.Fields{
		"id":    id,
		"name":  server.Name,
		"actor": actor,
	}).Info("Deleted GitHub server")

	s.notifyChange(EventServerDeleted, server)

	return nil
}

func (s *service) recordCreate(result string) {
	if s.metrics != nil {
		s.metrics.RecordCreate(result)
	}
}

func (s *service) refreshCount(ctx context.Context) {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to count servers")

		return
	}

	s.setCount(len(servers))
}

func (s *service) setCount(n int) {
	if s.metrics != nil {
		s.metrics.SetServersRegistered(n)
	}
}
