package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/weft-api/weft/internal/hooks"
	"github.com/weft-api/weft/internal/resource"
	"github.com/weft-api/weft/internal/web/cache"
	"github.com/weft-api/weft/internal/web/response"
	"github.com/weft-api/weft/internal/web/stream"
)

// errRejected signals that hooks filtered every entity out of a write
var errRejected = errors.New("request was rejected")

// list handles GET /{type}
func (rt *Router) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resourceType, ok := rt.resolveType(chi.URLParam(r, "type"))
	if !ok {
		response.RenderNotFound(w, fmt.Errorf("unknown resource type %q", chi.URLParam(r, "type")))
		return
	}

	includes := parseIncludes(r.URL.Query())
	if err := rt.validateIncludes(resourceType, includes); err != nil {
		response.RenderBadRequest(w, err)
		return
	}
	limit, offset, err := parsePage(r.URL.Query())
	if err != nil {
		response.RenderBadRequest(w, err)
		return
	}

	if err := rt.executor.BeforeRead(ctx, resourceType, hooks.PipelineGet, includes, nil); err != nil {
		response.RenderDomainError(w, err)
		return
	}

	key := cache.CollectionKey(rt.wireType(resourceType), r.URL.Query())
	if data, ok := rt.cachedDocument(ctx, key); ok {
		writeDocument(w, http.StatusOK, data)
		return
	}

	records, err := rt.store.FindAll(ctx, resourceType, parseConditions(r.URL.Query()))
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if err := rt.loadIncludes(ctx, resourceType, records, includes); err != nil {
		response.RenderDomainError(w, err)
		return
	}

	if err := rt.executor.AfterRead(ctx, resourceType, records, hooks.PipelineGet); err != nil {
		response.RenderDomainError(w, err)
		return
	}
	records, err = rt.executor.OnReturn(ctx, resourceType, records, hooks.PipelineGet)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}

	total := len(records)
	if limit > 0 {
		records = paginate(records, limit, offset)
	}
	doc, err := rt.serializer.Collection(resourceType, records)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	response.ParseFieldsets(r.URL.Query()).Apply(doc)
	doc.Meta = map[string]any{"total": total}
	if limit > 0 {
		doc.Links = response.BuildPaginationLinks(r.URL.String(), offset/limit+1, limit, total)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	rt.storeDocument(ctx, key, data)
	writeDocument(w, http.StatusOK, data)
}

// show handles GET /{type}/{id}
func (rt *Router) show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resourceType, ok := rt.resolveType(chi.URLParam(r, "type"))
	if !ok {
		response.RenderNotFound(w, fmt.Errorf("unknown resource type %q", chi.URLParam(r, "type")))
		return
	}
	id := chi.URLParam(r, "id")

	includes := parseIncludes(r.URL.Query())
	if err := rt.validateIncludes(resourceType, includes); err != nil {
		response.RenderBadRequest(w, err)
		return
	}

	if err := rt.executor.BeforeRead(ctx, resourceType, hooks.PipelineGetSingle, includes, []string{id}); err != nil {
		response.RenderDomainError(w, err)
		return
	}

	// single-resource documents are cached only in their canonical shape
	var key string
	if len(r.URL.Query()) == 0 {
		key = cache.ResourceKey(rt.wireType(resourceType), id)
		if data, ok := rt.cachedDocument(ctx, key); ok {
			writeDocument(w, http.StatusOK, data)
			return
		}
	}

	record, err := rt.store.Find(ctx, resourceType, id)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	records := []resource.Record{record}
	if err := rt.loadIncludes(ctx, resourceType, records, includes); err != nil {
		response.RenderDomainError(w, err)
		return
	}

	if err := rt.executor.AfterRead(ctx, resourceType, records, hooks.PipelineGetSingle); err != nil {
		response.RenderDomainError(w, err)
		return
	}
	records, err = rt.executor.OnReturn(ctx, resourceType, records, hooks.PipelineGetSingle)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if len(records) == 0 {
		response.RenderNotFound(w, fmt.Errorf("%s %s not found", rt.wireType(resourceType), id))
		return
	}

	doc, err := rt.serializer.Single(resourceType, records[0])
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	response.ParseFieldsets(r.URL.Query()).Apply(doc)
	data, err := json.Marshal(doc)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if key != "" {
		rt.storeDocument(ctx, key, data)
	}
	writeDocument(w, http.StatusOK, data)
}

// relationship handles GET /{type}/{id}/relationships/{relationship}
func (rt *Router) relationship(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resourceType, ok := rt.resolveType(chi.URLParam(r, "type"))
	if !ok {
		response.RenderNotFound(w, fmt.Errorf("unknown resource type %q", chi.URLParam(r, "type")))
		return
	}
	id := chi.URLParam(r, "id")
	relName := chi.URLParam(r, "relationship")

	if _, err := rt.registry.Proxy(resourceType, relName); err != nil {
		response.RenderDomainError(w, err)
		return
	}

	if err := rt.executor.BeforeRead(ctx, resourceType, hooks.PipelineGetRelationship, []string{relName}, []string{id}); err != nil {
		response.RenderDomainError(w, err)
		return
	}

	record, err := rt.store.Find(ctx, resourceType, id)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	records := []resource.Record{record}
	if err := rt.store.AttachRelationships(ctx, resourceType, records, []string{relName}); err != nil {
		response.RenderDomainError(w, err)
		return
	}

	if err := rt.executor.AfterRead(ctx, resourceType, records, hooks.PipelineGetRelationship); err != nil {
		response.RenderDomainError(w, err)
		return
	}
	records, err = rt.executor.OnReturn(ctx, resourceType, records, hooks.PipelineGetRelationship)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if len(records) == 0 {
		response.RenderNotFound(w, fmt.Errorf("%s %s not found", rt.wireType(resourceType), id))
		return
	}

	doc, err := rt.serializer.Linkage(resourceType, relName, records[0])
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	response.Render(w, http.StatusOK, doc)
}

// create handles POST /{type}
func (rt *Router) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resourceType, ok := rt.resolveType(chi.URLParam(r, "type"))
	if !ok {
		response.RenderNotFound(w, fmt.Errorf("unknown resource type %q", chi.URLParam(r, "type")))
		return
	}

	record, err := decodeRecord(rt.registry, resourceType, r.Body)
	if err != nil {
		response.RenderBadRequest(w, err)
		return
	}

	records, err := rt.executor.BeforeCreate(ctx, resourceType, []resource.Record{record}, hooks.PipelinePost)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if len(records) == 0 {
		response.RenderError(w, http.StatusUnprocessableEntity, errRejected)
		return
	}

	created, err := rt.store.Create(ctx, resourceType, records[0])
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	merged := rt.mergeRelationships(resourceType, created, records[0])

	if err := rt.executor.AfterCreate(ctx, resourceType, []resource.Record{merged}, hooks.PipelinePost); err != nil {
		response.RenderDomainError(w, err)
		return
	}
	returned, err := rt.executor.OnReturn(ctx, resourceType, []resource.Record{merged}, hooks.PipelinePost)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}

	rt.invalidate(ctx, resourceType)
	rt.publish(stream.ActionCreated, resourceType, resource.RecordID(created))

	var out resource.Record
	if len(returned) > 0 {
		out = returned[0]
	}
	doc, err := rt.serializer.Single(resourceType, out)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	response.Render(w, http.StatusCreated, doc)
}

// update handles PATCH /{type}/{id}
func (rt *Router) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resourceType, ok := rt.resolveType(chi.URLParam(r, "type"))
	if !ok {
		response.RenderNotFound(w, fmt.Errorf("unknown resource type %q", chi.URLParam(r, "type")))
		return
	}
	id := chi.URLParam(r, "id")

	record, err := decodeRecord(rt.registry, resourceType, r.Body)
	if err != nil {
		response.RenderBadRequest(w, err)
		return
	}
	record[resource.IDField] = id

	records, err := rt.executor.BeforeUpdate(ctx, resourceType, []resource.Record{record}, hooks.PipelinePatch)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if len(records) == 0 {
		response.RenderError(w, http.StatusUnprocessableEntity, errRejected)
		return
	}

	updated, err := rt.store.Update(ctx, resourceType, id, records[0])
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	merged := rt.mergeRelationships(resourceType, updated, records[0])

	if err := rt.executor.AfterUpdate(ctx, resourceType, []resource.Record{merged}, hooks.PipelinePatch); err != nil {
		response.RenderDomainError(w, err)
		return
	}
	returned, err := rt.executor.OnReturn(ctx, resourceType, []resource.Record{merged}, hooks.PipelinePatch)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}

	rt.invalidate(ctx, resourceType)
	rt.publish(stream.ActionUpdated, resourceType, id)

	var out resource.Record
	if len(returned) > 0 {
		out = returned[0]
	}
	doc, err := rt.serializer.Single(resourceType, out)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	response.Render(w, http.StatusOK, doc)
}

// delete handles DELETE /{type}/{id}
func (rt *Router) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resourceType, ok := rt.resolveType(chi.URLParam(r, "type"))
	if !ok {
		response.RenderNotFound(w, fmt.Errorf("unknown resource type %q", chi.URLParam(r, "type")))
		return
	}
	id := chi.URLParam(r, "id")

	record, err := rt.store.Find(ctx, resourceType, id)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}

	targets, err := rt.executor.BeforeDelete(ctx, resourceType, []resource.Record{record}, hooks.PipelineDelete)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if len(targets) == 0 {
		response.RenderError(w, http.StatusUnprocessableEntity, errRejected)
		return
	}

	deleteErr := rt.store.Delete(ctx, resourceType, id)
	if err := rt.executor.AfterDelete(ctx, resourceType, targets, hooks.PipelineDelete, deleteErr == nil); err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if deleteErr != nil {
		response.RenderDomainError(w, deleteErr)
		return
	}

	rt.invalidate(ctx, resourceType)
	rt.publish(stream.ActionDeleted, resourceType, id)
	w.WriteHeader(http.StatusNoContent)
}

// loadIncludes walks every include chain segment by segment, eagerly
// attaching each relationship onto the records reached so far.
func (rt *Router) loadIncludes(ctx context.Context, resourceType string, records []resource.Record, includes []string) error {
	for _, include := range includes {
		frontier := records
		currentType := resourceType
		for _, segment := range strings.Split(include, ".") {
			proxy, err := rt.registry.Proxy(currentType, segment)
			if err != nil {
				return err
			}
			if err := rt.store.AttachRelationships(ctx, currentType, frontier, []string{segment}); err != nil {
				return err
			}
			var next []resource.Record
			for _, rec := range frontier {
				next = append(next, relatedRecords(rec[segment])...)
			}
			currentType = proxy.RightType()
			frontier = next
			if len(frontier) == 0 {
				break
			}
		}
	}
	return nil
}

// validateIncludes rejects include chains that do not follow declared
// relationships, before any hook runs.
func (rt *Router) validateIncludes(resourceType string, includes []string) error {
	for _, include := range includes {
		currentType := resourceType
		for _, segment := range strings.Split(include, ".") {
			proxy, err := rt.registry.Proxy(currentType, segment)
			if err != nil {
				return fmt.Errorf("invalid include %q: %w", include, err)
			}
			currentType = proxy.RightType()
		}
	}
	return nil
}

// mergeRelationships copies the request's relationship linkage onto the
// persisted record so after-hooks see the full object graph.
func (rt *Router) mergeRelationships(resourceType string, persisted, requested resource.Record) resource.Record {
	schema, ok := rt.registry.Get(resourceType)
	if !ok {
		return persisted
	}
	merged := make(resource.Record, len(persisted)+len(schema.Relationships))
	for k, v := range persisted {
		merged[k] = v
	}
	for name := range schema.Relationships {
		if value, present := requested[name]; present {
			merged[name] = value
		}
	}
	return merged
}

func (rt *Router) wireType(resourceType string) string {
	if schema, ok := rt.registry.Get(resourceType); ok {
		return schema.TableName
	}
	return resourceType
}

func (rt *Router) cachedDocument(ctx context.Context, key string) ([]byte, bool) {
	if rt.cache == nil {
		return nil, false
	}
	data, err := rt.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			rt.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (rt *Router) storeDocument(ctx context.Context, key string, data []byte) {
	if rt.cache == nil {
		return
	}
	if err := rt.cache.Set(ctx, key, data, 0); err != nil {
		rt.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate drops every cached document of the type after a write
func (rt *Router) invalidate(ctx context.Context, resourceType string) {
	if rt.cache == nil {
		return
	}
	if err := rt.cache.InvalidateType(ctx, rt.wireType(resourceType)); err != nil {
		rt.logger.Warn("cache invalidation failed", zap.String("resource", resourceType), zap.Error(err))
	}
}

func (rt *Router) publish(action, resourceType, id string) {
	if rt.hub == nil {
		return
	}
	rt.hub.Publish(stream.Event{Action: action, Resource: rt.wireType(resourceType), ID: id})
}

// relatedRecords widens a loaded relationship value to a record slice
func relatedRecords(value any) []resource.Record {
	switch v := value.(type) {
	case resource.Record:
		return []resource.Record{v}
	case []resource.Record:
		return v
	case []any:
		records := make([]resource.Record, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		return records
	default:
		return nil
	}
}

func parseIncludes(query url.Values) []string {
	raw := query.Get("include")
	if raw == "" {
		return nil
	}
	var includes []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			includes = append(includes, part)
		}
	}
	return includes
}

// parseConditions extracts filter[field]=value pairs into store conditions
func parseConditions(query url.Values) resource.Record {
	conditions := make(resource.Record)
	for key, values := range query {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		field := key[len("filter[") : len(key)-1]
		if field != "" {
			conditions[field] = values[0]
		}
	}
	return conditions
}

func parsePage(query url.Values) (limit, offset int, err error) {
	if raw := query.Get("page[limit]"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid page[limit] %q", raw)
		}
	}
	if raw := query.Get("page[offset]"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid page[offset] %q", raw)
		}
	}
	return limit, offset, nil
}

func paginate(records []resource.Record, limit, offset int) []resource.Record {
	if offset >= len(records) {
		return nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

func writeDocument(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", response.MediaType)
	w.WriteHeader(status)
	w.Write(data)
}
