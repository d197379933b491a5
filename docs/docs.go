// Package docs is generated by swaggo/swag from the handler annotations in
// cmd/order-service. Regenerate with: swag init -g cmd/order-service/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/orders": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "List orders visible to the caller",
                "parameters": [
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Place an order",
                "parameters": [
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.CreateOrderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request"},
                    "409": {"description": "Insufficient stock"},
                    "422": {"description": "Product unavailable"}
                }
            }
        },
        "/orders/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Get an order",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/orders/{id}/status": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Move an order through its lifecycle (admin)",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.UpdateStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Invalid transition"}}
            }
        },
        "/orders/{id}/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Cancel an order",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Invalid transition"}}
            }
        },
        "/checkout/session": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["checkout"],
                "summary": "Place an order and open a hosted payment session",
                "parameters": [
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.CheckoutRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Prices changed or insufficient stock"},
                    "502": {"description": "Payment provider unavailable"}
                }
            }
        },
        "/promos/validate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["promos"],
                "summary": "Check a promo code against a subtotal",
                "responses": {"200": {"description": "OK"}, "422": {"description": "Promo rejected"}}
            }
        },
        "/promos/active": {
            "get": {
                "produces": ["application/json"],
                "tags": ["promos"],
                "summary": "List active promo codes",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/webhooks/{provider}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Receive a payment provider webhook",
                "parameters": [{"type": "string", "name": "provider", "in": "path", "required": true}],
                "responses": {"200": {"description": "Acknowledged"}, "400": {"description": "Bad signature"}, "404": {"description": "Unknown provider"}, "500": {"description": "Retry"}}
            }
        }
    },
    "definitions": {
        "customer.Address": {
            "type": "object",
            "required": ["address1", "city", "country", "firstName", "lastName", "postalCode"],
            "properties": {
                "firstName": {"type": "string", "example": "Thandi"},
                "lastName": {"type": "string", "example": "Mokoena"},
                "address1": {"type": "string", "example": "12 Long Street"},
                "address2": {"type": "string"},
                "city": {"type": "string", "example": "Cape Town"},
                "state": {"type": "string"},
                "postalCode": {"type": "string", "example": "8001"},
                "country": {"type": "string", "example": "ZA"},
                "phone": {"type": "string"},
                "email": {"type": "string", "example": "thandi@example.com"}
            }
        },
        "order.CreateOrderItem": {
            "type": "object",
            "required": ["productId", "quantity"],
            "properties": {
                "productId": {"type": "integer", "example": 7},
                "quantity": {"type": "integer", "maximum": 99, "minimum": 1, "example": 2}
            }
        },
        "order.CreateOrderRequest": {
            "type": "object",
            "required": ["items", "shippingAddress"],
            "properties": {
                "items": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/order.CreateOrderItem"}},
                "shippingAddress": {"$ref": "#/definitions/customer.Address"},
                "promoCode": {"type": "string", "example": "ROOTED15"},
                "region": {"type": "string", "example": "domestic"}
            }
        },
        "order.CheckoutRequest": {
            "type": "object",
            "required": ["items", "shippingAddress"],
            "properties": {
                "items": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/order.CreateOrderItem"}},
                "shippingAddress": {"$ref": "#/definitions/customer.Address"},
                "promoCode": {"type": "string", "example": "ROOTED15"},
                "region": {"type": "string", "example": "domestic"},
                "provider": {"type": "string", "enum": ["stripe", "yoco"], "example": "stripe"}
            }
        },
        "order.UpdateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "example": "shipped"},
                "trackingNumber": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Ordenes Checkout API",
	Description:      "Order placement, hosted checkout and payment reconciliation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
