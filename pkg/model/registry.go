package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registry errors. NotFound, AccessDenied and BadRequest classify every
// per-request failure; the finer errors wrap one of them.
var (
	ErrNotFound      = errors.New("not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrBadRequest    = errors.New("bad request")
	ErrAlreadyExists = errors.New("already exists")
	ErrExecuteFailed = errors.New("execute failed")

	ErrInvalidPath  = fmt.Errorf("%w: invalid path", ErrBadRequest)
	ErrValueType    = fmt.Errorf("%w: invalid value type", ErrBadRequest)
	ErrOutOfRange   = fmt.Errorf("%w: value out of range", ErrBadRequest)
	ErrNotInEnum    = fmt.Errorf("%w: value not in enumeration", ErrBadRequest)
	ErrNotAResource = fmt.Errorf("%w: path does not address a resource", ErrBadRequest)
)

// ObjectDefinition describes an object type and its resources.
type ObjectDefinition struct {
	ID        uint16
	Name      string
	Multiple  bool
	Mandatory bool
	Resources []ResourceDefinition
}

// Resource returns the definition of a resource by ID.
func (d ObjectDefinition) Resource(id uint16) (ResourceDefinition, bool) {
	for _, r := range d.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return ResourceDefinition{}, false
}

// Value is a resource value addressed by path.
type Value struct {
	Path  Path
	Type  DataType
	Value any
}

// RemoveListener is notified with the path of every removed node.
type RemoveListener func(Path)

type object struct {
	def       ObjectDefinition
	instances map[uint16]*instance
}

type instance struct {
	resources map[uint16]*Resource
}

// Registry holds the object tree of one client.
type Registry struct {
	mu        sync.RWMutex
	objects   map[uint16]*object
	listeners []RemoveListener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[uint16]*object),
	}
}

// OnRemove registers a listener for removals.
func (r *Registry) OnRemove(fn RemoveListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notifyRemoved(p Path) {
	r.mu.RLock()
	listeners := slices.Clone(r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(p)
	}
}

// CreateObject adds an object type without instances.
func (r *Registry) CreateObject(def ObjectDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[def.ID]; exists {
		return fmt.Errorf("%w: object %d", ErrAlreadyExists, def.ID)
	}
	for i, res := range def.Resources {
		for _, other := range def.Resources[:i] {
			if other.ID == res.ID {
				return fmt.Errorf("%w: object %d declares resource %d twice", ErrAlreadyExists, def.ID, res.ID)
			}
		}
	}

	r.objects[def.ID] = &object{
		def:       def,
		instances: make(map[uint16]*instance),
	}
	return nil
}

// RemoveObject removes an object and everything below it.
func (r *Registry) RemoveObject(objectID uint16) error {
	r.mu.Lock()
	if _, ok := r.objects[objectID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: object %d", ErrNotFound, objectID)
	}
	delete(r.objects, objectID)
	r.mu.Unlock()

	r.notifyRemoved(ObjectPath(objectID))
	return nil
}

// CreateInstance instantiates an object. Every resource in the object
// definition is created with its default value.
func (r *Registry) CreateInstance(objectID, instanceID uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[objectID]
	if !ok {
		return fmt.Errorf("%w: object %d", ErrNotFound, objectID)
	}
	if _, exists := obj.instances[instanceID]; exists {
		return fmt.Errorf("%w: instance /%d/%d", ErrAlreadyExists, objectID, instanceID)
	}
	if !obj.def.Multiple && len(obj.instances) > 0 {
		return fmt.Errorf("%w: object %d is single-instance", ErrAlreadyExists, objectID)
	}

	inst := &instance{resources: make(map[uint16]*Resource, len(obj.def.Resources))}
	for _, def := range obj.def.Resources {
		res, err := newResource(def)
		if err != nil {
			return fmt.Errorf("object %d: %w", objectID, err)
		}
		inst.resources[def.ID] = res
	}
	obj.instances[instanceID] = inst
	return nil
}

// RemoveInstance removes an instance and its resources.
func (r *Registry) RemoveInstance(objectID, instanceID uint16) error {
	r.mu.Lock()
	obj, ok := r.objects[objectID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: object %d", ErrNotFound, objectID)
	}
	if _, ok := obj.instances[instanceID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: instance /%d/%d", ErrNotFound, objectID, instanceID)
	}
	delete(obj.instances, instanceID)
	r.mu.Unlock()

	r.notifyRemoved(InstancePath(objectID, instanceID))
	return nil
}

// AddResource adds a resource to an existing instance.
func (r *Registry) AddResource(objectID, instanceID uint16, def ResourceDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.instanceLocked(objectID, instanceID)
	if err != nil {
		return err
	}
	if _, exists := inst.resources[def.ID]; exists {
		return fmt.Errorf("%w: resource %s", ErrAlreadyExists, ResourcePath(objectID, instanceID, def.ID))
	}

	res, err := newResource(def)
	if err != nil {
		return err
	}
	inst.resources[def.ID] = res
	return nil
}

// RemoveResource removes a single resource.
func (r *Registry) RemoveResource(p Path) error {
	if !p.IsResource() {
		return ErrNotAResource
	}

	r.mu.Lock()
	inst, err := r.instanceLocked(p.ObjectID, p.InstanceID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if _, ok := inst.resources[p.ResourceID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: resource %s", ErrNotFound, p)
	}
	delete(inst.resources, p.ResourceID)
	r.mu.Unlock()

	r.notifyRemoved(p)
	return nil
}

// Exists reports whether every segment of p is present.
func (r *Registry) Exists(p Path) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkLocked(p) == nil
}

// ObjectDefinition returns the definition of an object.
func (r *Registry) ObjectDefinition(objectID uint16) (ObjectDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[objectID]
	if !ok {
		return ObjectDefinition{}, fmt.Errorf("%w: object %d", ErrNotFound, objectID)
	}
	return obj.def, nil
}

// Definition returns the definition of a resource.
func (r *Registry) Definition(p Path) (ResourceDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, err := r.resourceLocked(p)
	if err != nil {
		return ResourceDefinition{}, err
	}
	return res.def, nil
}

// Get returns the current value of a resource without access checks.
func (r *Registry) Get(p Path) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, err := r.resourceLocked(p)
	if err != nil {
		return nil, err
	}
	return res.value, nil
}

// Set updates a resource from local application code. The access mode is
// not consulted; type and bounds are.
func (r *Registry) Set(p Path, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.resourceLocked(p)
	if err != nil {
		return err
	}
	v, err := res.validate(value)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	res.value = v
	return nil
}

// Read returns the readable values at p on behalf of the server.
// A resource path must be readable; a container path returns every
// readable resource below it, ordered by path.
func (r *Registry) Read(p Path) ([]Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkLocked(p); err != nil {
		return nil, err
	}

	if p.IsResource() {
		res := r.objects[p.ObjectID].instances[p.InstanceID].resources[p.ResourceID]
		if !res.def.Access.CanRead() {
			return nil, fmt.Errorf("%w: %s is not readable", ErrAccessDenied, p)
		}
		return []Value{{Path: p, Type: res.def.Type, Value: res.value}}, nil
	}

	var values []Value
	r.walkLocked(p, func(rp Path, res *Resource) {
		if res.def.Access.CanRead() {
			values = append(values, Value{Path: rp, Type: res.def.Type, Value: res.value})
		}
	})
	return values, nil
}

// Write updates a resource on behalf of the server.
func (r *Registry) Write(p Path, value any) error {
	return r.WriteValues([]Value{{Path: p, Value: value}})
}

// WriteValues applies a batch of server writes. Every value is validated
// before any is applied, so a failed batch leaves the registry unchanged.
func (r *Registry) WriteValues(values []Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]*Resource, len(values))
	coerced := make([]any, len(values))
	for i, v := range values {
		res, err := r.resourceLocked(v.Path)
		if err != nil {
			return err
		}
		if !res.def.Access.CanWrite() {
			return fmt.Errorf("%w: %s is not writable", ErrAccessDenied, v.Path)
		}
		cv, err := res.validate(v.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", v.Path, err)
		}
		targets[i] = res
		coerced[i] = cv
	}

	for i, res := range targets {
		res.value = coerced[i]
	}
	return nil
}

// SetExecuteHandler binds the action of an executable resource.
func (r *Registry) SetExecuteHandler(p Path, handler ExecuteHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.resourceLocked(p)
	if err != nil {
		return err
	}
	if !res.def.Access.CanExecute() {
		return fmt.Errorf("%w: %s is not executable", ErrAccessDenied, p)
	}
	res.handler = handler
	return nil
}

// Execute runs an executable resource on behalf of the server.
// The handler runs without the registry lock held, so it may update
// resource values.
func (r *Registry) Execute(ctx context.Context, p Path, args string) error {
	r.mu.RLock()
	res, err := r.resourceLocked(p)
	if err != nil {
		r.mu.RUnlock()
		return err
	}
	if !res.def.Access.CanExecute() {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s is not executable", ErrAccessDenied, p)
	}
	handler := res.handler
	r.mu.RUnlock()

	if handler == nil {
		return nil
	}
	if err := handler(ctx, p, args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExecuteFailed, p, err)
	}
	return nil
}

// Children lists the direct children of p in ascending ID order.
// A resource has no children.
func (r *Registry) Children(p Path) ([]Path, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkLocked(p); err != nil {
		return nil, err
	}

	var children []Path
	switch {
	case p.IsRoot():
		for _, id := range sortedKeys(r.objects) {
			children = append(children, ObjectPath(id))
		}
	case p.IsObject():
		for _, id := range sortedKeys(r.objects[p.ObjectID].instances) {
			children = append(children, InstancePath(p.ObjectID, id))
		}
	case p.IsInstance():
		for _, id := range sortedKeys(r.objects[p.ObjectID].instances[p.InstanceID].resources) {
			children = append(children, ResourcePath(p.ObjectID, p.InstanceID, id))
		}
	}
	return children, nil
}

// ObjectIDs returns the IDs of all objects in ascending order.
func (r *Registry) ObjectIDs() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.objects)
}

// Len returns the number of objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

func (r *Registry) checkLocked(p Path) error {
	if p.IsRoot() {
		return nil
	}
	obj, ok := r.objects[p.ObjectID]
	if !ok {
		return fmt.Errorf("%w: object %d", ErrNotFound, p.ObjectID)
	}
	if p.IsObject() {
		return nil
	}
	inst, ok := obj.instances[p.InstanceID]
	if !ok {
		return fmt.Errorf("%w: instance %s", ErrNotFound, InstancePath(p.ObjectID, p.InstanceID))
	}
	if p.IsInstance() {
		return nil
	}
	if _, ok := inst.resources[p.ResourceID]; !ok {
		return fmt.Errorf("%w: resource %s", ErrNotFound, p)
	}
	return nil
}

func (r *Registry) instanceLocked(objectID, instanceID uint16) (*instance, error) {
	obj, ok := r.objects[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: object %d", ErrNotFound, objectID)
	}
	inst, ok := obj.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: instance %s", ErrNotFound, InstancePath(objectID, instanceID))
	}
	return inst, nil
}

func (r *Registry) resourceLocked(p Path) (*Resource, error) {
	if err := r.checkLocked(p); err != nil {
		return nil, err
	}
	if !p.IsResource() {
		return nil, fmt.Errorf("%w: %s", ErrNotAResource, p)
	}
	return r.objects[p.ObjectID].instances[p.InstanceID].resources[p.ResourceID], nil
}

// walkLocked visits every resource below p in path order.
func (r *Registry) walkLocked(p Path, fn func(Path, *Resource)) {
	for _, oid := range sortedKeys(r.objects) {
		if p.Depth() >= DepthObject && oid != p.ObjectID {
			continue
		}
		obj := r.objects[oid]
		for _, iid := range sortedKeys(obj.instances) {
			if p.Depth() >= DepthInstance && iid != p.InstanceID {
				continue
			}
			inst := obj.instances[iid]
			for _, rid := range sortedKeys(inst.resources) {
				fn(ResourcePath(oid, iid, rid), inst.resources[rid])
			}
		}
	}
}

func sortedKeys[V any](m map[uint16]V) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
