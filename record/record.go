package record

import (
	"reflect"
	"sort"
	"time"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/remote"
)

// Record is one local row mirroring a remote resource. A Record is not safe
// for concurrent use; each operation works on its own copy.
type Record struct {
	Type            string
	ID              int64
	ExpiresAt       *time.Time
	RemoteUpdatedAt *time.Time
	RemoteETag      string
	Errors          faults.FieldErrors

	attributes map[string]any
	original   map[string]any
	persisted  bool
	destroyed  bool
	noSync     *bool
}

func New(recordType string) *Record {
	return &Record{
		Type:       recordType,
		Errors:     faults.FieldErrors{},
		attributes: map[string]any{},
		original:   map[string]any{},
	}
}

// Load builds a persisted record as read from local storage.
func Load(recordType string, id int64, attributes map[string]any) *Record {
	rec := New(recordType)
	rec.ID = id
	for name, value := range attributes {
		rec.attributes[name] = normalize(value)
	}
	rec.persisted = true
	rec.snapshot()
	return rec
}

func (r *Record) Get(name string) any {
	return r.attributes[name]
}

func (r *Record) Has(name string) bool {
	value, exists := r.attributes[name]
	return exists && value != nil
}

func (r *Record) Set(name string, value any) {
	r.attributes[name] = normalize(value)
}

func (r *Record) Assign(values map[string]any) {
	for name, value := range values {
		r.Set(name, value)
	}
}

// Attributes returns a copy of the current attribute values.
func (r *Record) Attributes() map[string]any {
	cloned := make(map[string]any, len(r.attributes))
	for name, value := range r.attributes {
		cloned[name] = value
	}
	return cloned
}

func (r *Record) AttributeNames() []string {
	names := make([]string, 0, len(r.attributes))
	for name := range r.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Changed lists attributes whose value differs from the last persisted state.
func (r *Record) Changed() []string {
	var changed []string
	for name, value := range r.attributes {
		previous, existed := r.original[name]
		if !existed && value == nil {
			continue
		}
		if !existed || !reflect.DeepEqual(previous, value) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func (r *Record) AttributeChanged(name string) bool {
	previous, existed := r.original[name]
	current, exists := r.attributes[name]
	if !existed && !exists {
		return false
	}
	return !reflect.DeepEqual(previous, current)
}

// Original returns the value name had at the last local write.
func (r *Record) Original(name string) (any, bool) {
	value, exists := r.original[name]
	return value, exists && value != nil
}

func (r *Record) Persisted() bool {
	return r.persisted && !r.destroyed
}

func (r *Record) NewRecord() bool {
	return !r.persisted
}

func (r *Record) Destroyed() bool {
	return r.destroyed
}

// MarkPersisted records a successful local write.
func (r *Record) MarkPersisted(id int64) {
	if id != 0 {
		r.ID = id
	}
	r.persisted = true
	r.destroyed = false
	r.snapshot()
}

func (r *Record) MarkDestroyed() {
	r.destroyed = true
}

// SetNoSync overrides remote synchronization for this instance only.
func (r *Record) SetNoSync(value bool) {
	r.noSync = &value
}

func (r *Record) ResetNoSync() {
	r.noSync = nil
}

// NoSync returns the instance override and whether one is defined.
func (r *Record) NoSync() (bool, bool) {
	if r.noSync == nil {
		return false, false
	}
	return *r.noSync, true
}

func (r *Record) ClearErrors() {
	r.Errors = faults.FieldErrors{}
}

func (r *Record) AddErrors(fields faults.FieldErrors) {
	if r.Errors == nil {
		r.Errors = faults.FieldErrors{}
	}
	for field, messages := range fields {
		r.Errors.Add(field, messages...)
	}
}

// Clone returns a detached copy, including change-tracking state.
func (r *Record) Clone() *Record {
	cloned := *r
	cloned.attributes = r.Attributes()
	cloned.original = make(map[string]any, len(r.original))
	for name, value := range r.original {
		cloned.original[name] = value
	}
	cloned.Errors = r.Errors.Clone()
	if cloned.Errors == nil {
		cloned.Errors = faults.FieldErrors{}
	}
	if r.ExpiresAt != nil {
		expiresAt := *r.ExpiresAt
		cloned.ExpiresAt = &expiresAt
	}
	if r.RemoteUpdatedAt != nil {
		updatedAt := *r.RemoteUpdatedAt
		cloned.RemoteUpdatedAt = &updatedAt
	}
	if r.noSync != nil {
		value := *r.noSync
		cloned.noSync = &value
	}
	return &cloned
}

func (r *Record) snapshot() {
	r.original = make(map[string]any, len(r.attributes))
	for name, value := range r.attributes {
		r.original[name] = value
	}
}

func normalize(value any) any {
	normalized, err := remote.NormalizeValue(value)
	if err != nil {
		return value
	}
	return normalized
}
