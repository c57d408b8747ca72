package fluid

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Keyable can be implemented by a tag value to provide the key used when
// comparing and hashing contexts. Two values with the same key are treated
// as the same value for caching purposes.
type Keyable interface {
	// CacheKey returns a key that is unique for the value it represents.
	CacheKey() string
}

var keyProviderLock sync.RWMutex
var keyProviders = make(map[reflect.Type]func(any) ([]byte, error))
var keyInterfaceProviders = make(map[reflect.Type]func(any) ([]byte, error))

// keyInterfaceProviderOrder keeps interface lookups deterministic.
var keyInterfaceProviderOrder []reflect.Type

// RegisterKeyProvider registers a function that generates the key of tag
// values of type t. This allows types that do not implement Keyable, and
// that you don't control, to participate in context equality. If t is an
// interface type the provider applies to every value implementing it.
func RegisterKeyProvider(t reflect.Type, f func(any) ([]byte, error)) {
	keyProviderLock.Lock()
	defer keyProviderLock.Unlock()
	if t.Kind() == reflect.Interface {
		if _, ok := keyInterfaceProviders[t]; !ok {
			keyInterfaceProviderOrder = append(keyInterfaceProviderOrder, t)
		}
		keyInterfaceProviders[t] = f
	} else {
		keyProviders[t] = f
	}
}

func keyProviderFor(t reflect.Type) func(any) ([]byte, error) {
	keyProviderLock.RLock()
	defer keyProviderLock.RUnlock()
	if f, ok := keyProviders[t]; ok {
		return f
	}
	for _, iface := range keyInterfaceProviderOrder {
		if t.Implements(iface) {
			return keyInterfaceProviders[iface]
		}
	}
	return nil
}

// valueKey returns the canonical key for a single tag value. The value's
// dynamic type is part of the key so that e.g. 1 and "1" never collide.
//
// The order of precedence is: a registered key provider, Keyable, Stringer,
// JSON encoding and finally the Go-syntax representation.
func valueKey(val any) string {
	if val == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(val)
	prefix := t.String() + "="

	if keyProvider := keyProviderFor(t); keyProvider != nil {
		bytes, err := keyProvider(val)
		if err == nil {
			return prefix + string(bytes)
		}
	}
	if keyable, ok := val.(Keyable); ok {
		return prefix + keyable.CacheKey()
	}
	if stringer, ok := val.(fmt.Stringer); ok {
		return prefix + stringer.String()
	}
	valJson, err := json.Marshal(val)
	if err == nil && string(valJson) != "{}" {
		return prefix + string(valJson)
	}
	return prefix + fmt.Sprintf("%#v", val)
}
