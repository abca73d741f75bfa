package model

import (
	"fmt"
	"time"
)

// Object is a workspace object: a typed bag of nested properties.
type Object struct {
	Key       string         `json:"key"`
	ID        string         `json:"id"`
	Type      string         `json:"type,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SetKey sets the database key for this object.
func (o *Object) SetKey(key string) {
	o.Key = key
}

// GetKey returns the database key for this object.
func (o *Object) GetKey() string {
	return o.Key
}

// GenerateObjectKey generates a database key for an object id.
func GenerateObjectKey(id string) string {
	return fmt.Sprintf("%s:%s", PrefixObject, id)
}

// NewObject creates an object record.
func NewObject(id, typ string, props map[string]any) *Object {
	now := time.Now()
	return &Object{
		Key:       GenerateObjectKey(id),
		ID:        id,
		Type:      typ,
		Props:     props,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
