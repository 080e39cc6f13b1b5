package recommend

import (
	"context"
	"net/http"
	"slices"
)

// AttributeEntityTypes lists the entity types that carry attributes.
var AttributeEntityTypes = []string{"list", "product", "variation", "order", "order_item", "contact"}

func validateEntityType(entityType string) error {
	if !slices.Contains(AttributeEntityTypes, entityType) {
		return invalidArgument("invalid attribute entity type %q", entityType)
	}
	return nil
}

// Attribute returns the attribute resource of entityType.
func (c *Client) Attribute(entityType string) (*Resource, error) {
	if err := validateEntityType(entityType); err != nil {
		return nil, err
	}
	return newResource(c, joinPath("attribute", entityType), CapCRUD), nil
}

// AttributeStoreMappingAPI maps one attribute to per-store values.
type AttributeStoreMappingAPI struct {
	client        *Client
	entityType    string
	attributeCode string
}

// AttributeStoreMapping returns the store mappings of an attribute.
func (c *Client) AttributeStoreMapping(entityType, attributeCode string) (*AttributeStoreMappingAPI, error) {
	if err := validateEntityType(entityType); err != nil {
		return nil, err
	}
	if attributeCode == "" {
		return nil, invalidArgument("attribute code is required")
	}
	return &AttributeStoreMappingAPI{client: c, entityType: entityType, attributeCode: attributeCode}, nil
}

func (a *AttributeStoreMappingAPI) path(storeCode string) string {
	return joinPath("attribute", a.entityType, a.attributeCode, "store", storeCode, "mapping")
}

func (a *AttributeStoreMappingAPI) Get(ctx context.Context, storeCode string, opts ...CallOption) (*Response, error) {
	if err := requireID(storeCode); err != nil {
		return nil, err
	}
	return a.client.call(ctx, http.MethodGet, a.path(storeCode), nil, opts)
}

func (a *AttributeStoreMappingAPI) Create(ctx context.Context, storeCode string, data any, opts ...CallOption) (*Response, error) {
	if err := requireID(storeCode); err != nil {
		return nil, err
	}
	return a.client.call(ctx, http.MethodPost, a.path(storeCode), data, opts)
}

func (a *AttributeStoreMappingAPI) Delete(ctx context.Context, storeCode string, opts ...CallOption) (*Response, error) {
	if err := requireID(storeCode); err != nil {
		return nil, err
	}
	return a.client.call(ctx, http.MethodDelete, a.path(storeCode), nil, opts)
}
