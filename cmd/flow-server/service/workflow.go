package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/cmd/flow-server/repository"
	"github.com/lyzr/flow/common/cache"
	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/validation"
	"github.com/lyzr/flow/common/workflow"
)

const workflowCacheTTL = 5 * time.Minute

func workflowCacheKey(id string) string {
	return "workflow:" + id
}

// workflowSchemaJSON is the shape check applied to submitted definitions
// before the deeper structural validation in workflow.Validate. It catches
// malformed payloads with a JSON-path error instead of a generic bind error.
const workflowSchemaJSON = `{
	"type": "object",
	"required": ["name", "nodes"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"active": {"type": "boolean"},
		"nodes": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"parameters": {"type": "object"},
					"disabled": {"type": "boolean"},
					"continueOnFail": {"type": "boolean"},
					"retryOnFail": {"type": "integer"},
					"retryDelay": {"type": "integer"},
					"pinnedData": {"type": "array"}
				}
			}
		},
		"connections": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["sourceNode", "targetNode"],
				"properties": {
					"sourceNode": {"type": "string", "minLength": 1},
					"sourceOutput": {"type": "string"},
					"targetNode": {"type": "string", "minLength": 1},
					"targetInput": {"type": "string"}
				}
			}
		},
		"errorWorkflowId": {"type": "string"}
	}
}`

var workflowPayloadSchema = mustCompileSchema(workflowSchemaJSON)

func mustCompileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("workflow payload schema does not compile: %v", err))
	}
	return schema
}

// checkWorkflowPayload runs the schema check. Failures come back as
// ValidationError so handlers can map them to a 400.
func checkWorkflowPayload(payload interface{}) error {
	result, err := workflowPayloadSchema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("failed to run payload schema check: %w", err)
	}
	if result.Valid() {
		return nil
	}

	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return &workflow.ValidationError{Field: "workflow", Reason: strings.Join(reasons, "; ")}
}

// WorkflowService owns the workflow definition lifecycle: CRUD with schema
// and structural validation, a cache in front of reads, and the error-hook
// registrations that follow every mutation.
type WorkflowService struct {
	store   repository.WorkflowStore
	cache   cache.Cache
	hooks   *ErrorHookRegistry
	patches *validation.PatchValidator
	log     *logger.Logger

	// Invoked after every mutation. The scheduler hangs its cron re-scan
	// off this.
	onChange func()
}

func NewWorkflowService(store repository.WorkflowStore, workflowCache cache.Cache, hooks *ErrorHookRegistry, log *logger.Logger) *WorkflowService {
	return &WorkflowService{
		store:   store,
		cache:   workflowCache,
		hooks:   hooks,
		patches: validation.NewPatchValidator(),
		log:     log,
	}
}

// OnChange registers a callback fired after create, update, patch and
// delete. Must be called before the service starts taking traffic.
func (s *WorkflowService) OnChange(fn func()) {
	s.onChange = fn
}

func (s *WorkflowService) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Create validates and persists a new workflow definition.
func (s *WorkflowService) Create(ctx context.Context, req *models.CreateWorkflowRequest) (*models.WorkflowRecord, error) {
	if err := checkWorkflowPayload(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &models.WorkflowRecord{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Active:          req.Active,
		Nodes:           req.Nodes,
		Connections:     req.Connections,
		ErrorWorkflowID: req.ErrorWorkflowID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := record.Definition().Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store workflow: %w", err)
	}

	s.hooks.Set(record.ID, record.ErrorWorkflowID)
	s.log.Info("workflow created",
		"workflow_id", record.ID,
		"name", record.Name,
		"nodes", len(record.Nodes),
		"active", record.Active)
	s.notifyChange()
	return record, nil
}

// Get returns one workflow, reading through the cache.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	key := workflowCacheKey(id)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var record models.WorkflowRecord
		if err := json.Unmarshal(data, &record); err == nil {
			return &record, nil
		}
		s.log.Warn("discarding undecodable cached workflow", "workflow_id", id)
	}

	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(record); err == nil {
		_ = s.cache.Set(ctx, key, data, workflowCacheTTL)
	}
	return record, nil
}

// List returns all workflows, newest first.
func (s *WorkflowService) List(ctx context.Context) ([]*models.WorkflowRecord, error) {
	return s.store.List(ctx)
}

// ListActive returns workflows with active=true. The scheduler scans these
// for cron triggers.
func (s *WorkflowService) ListActive(ctx context.Context) ([]*models.WorkflowRecord, error) {
	return s.store.ListActive(ctx)
}

// Update replaces a workflow definition wholesale. The creation timestamp
// survives the replace.
func (s *WorkflowService) Update(ctx context.Context, id string, req *models.UpdateWorkflowRequest) (*models.WorkflowRecord, error) {
	if err := checkWorkflowPayload(req); err != nil {
		return nil, err
	}

	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	record := &models.WorkflowRecord{
		ID:              existing.ID,
		Name:            req.Name,
		Active:          req.Active,
		Nodes:           req.Nodes,
		Connections:     req.Connections,
		ErrorWorkflowID: req.ErrorWorkflowID,
		CreatedAt:       existing.CreatedAt,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := record.Definition().Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store workflow %s: %w", id, err)
	}

	s.invalidate(ctx, id)
	s.hooks.Set(id, record.ErrorWorkflowID)
	s.log.Info("workflow updated", "workflow_id", id, "name", record.Name)
	s.notifyChange()
	return record, nil
}

// Patch applies an RFC 6902 operation list (JSON array body) or an RFC 7386
// merge patch (JSON object body) to the stored definition, then re-validates.
func (s *WorkflowService) Patch(ctx context.Context, id string, patch []byte) (*models.WorkflowRecord, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	original, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workflow %s: %w", id, err)
	}

	patched, err := s.applyPatch(original, patch)
	if err != nil {
		var verr *workflow.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, &workflow.ValidationError{Field: "patch", Reason: err.Error()}
	}

	record := &models.WorkflowRecord{}
	if err := json.Unmarshal(patched, record); err != nil {
		return nil, &workflow.ValidationError{
			Field:  "patch",
			Reason: fmt.Sprintf("patched document is not a workflow: %v", err),
		}
	}

	// Identity and creation time are not patchable.
	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = time.Now().UTC()

	if err := checkWorkflowPayload(record); err != nil {
		return nil, err
	}
	if err := record.Definition().Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store patched workflow %s: %w", id, err)
	}

	s.invalidate(ctx, id)
	s.hooks.Set(id, record.ErrorWorkflowID)
	s.log.Info("workflow patched", "workflow_id", id)
	s.notifyChange()
	return record, nil
}

// Delete removes a workflow and its hook registration.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.hooks.Remove(id)
	s.log.Info("workflow deleted", "workflow_id", id)
	s.notifyChange()
	return nil
}

// RebuildHooks repopulates the error-hook registry from the store. Called
// once on startup so hooks survive restarts.
func (s *WorkflowService) RebuildHooks(ctx context.Context) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows for hook rebuild: %w", err)
	}

	count := 0
	for _, record := range records {
		if record.ErrorWorkflowID != "" {
			s.hooks.Set(record.ID, record.ErrorWorkflowID)
			count++
		}
	}
	if count > 0 {
		s.log.Info("error hooks registered", "count", count)
	}
	return nil
}

func (s *WorkflowService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, workflowCacheKey(id)); err != nil {
		s.log.Warn("failed to invalidate workflow cache", "workflow_id", id, "error", err)
	}
}

// applyPatch dispatches on body shape: arrays are RFC 6902 operation lists,
// objects are merge patches. Operation lists run through the structural
// pre-check first so callers get a field-level error, not a library one.
func (s *WorkflowService) applyPatch(original, patch []byte) ([]byte, error) {
	trimmed := bytes.TrimLeft(patch, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ops []map[string]interface{}
		if err := json.Unmarshal(patch, &ops); err != nil {
			return nil, fmt.Errorf("failed to decode patch: %w", err)
		}
		if err := s.patches.ValidateOperations(ops); err != nil {
			return nil, err
		}

		decoded, err := jsonpatch.DecodePatch(patch)
		if err != nil {
			return nil, fmt.Errorf("failed to decode patch: %w", err)
		}
		return decoded.Apply(original)
	}
	return jsonpatch.MergePatch(original, patch)
}
