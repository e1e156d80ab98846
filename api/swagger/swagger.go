package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "RegDoc API",
        "description": "Regulatory document lifecycle and submission gateway",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Documents", "description": "Documents and version history"},
        {"name": "Locks", "description": "Exclusive edit locks"},
        {"name": "Approvals", "description": "Sign-off chains and digital signatures"},
        {"name": "Redaction", "description": "Redaction patterns and runs"},
        {"name": "Harvest", "description": "Content harvest rules"},
        {"name": "Submissions", "description": "Submission packages and gateway dispatch"},
        {"name": "Audit", "description": "Audit trail"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive a token pair",
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new pair",
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/documents": {
            "get": {
                "tags": ["Documents"],
                "summary": "List documents",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Documents"],
                "summary": "Create a document",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/documents/{id}/versions": {
            "post": {
                "tags": ["Documents"],
                "summary": "Create a new version",
                "responses": {
                    "201": {"description": "Created"},
                    "423": {"description": "Document locked by another user"}
                }
            }
        },
        "/documents/{id}/versions/{number}": {
            "get": {
                "tags": ["Documents"],
                "summary": "Fetch a specific version",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/documents/{id}/history": {
            "get": {
                "tags": ["Documents"],
                "summary": "Full version history",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/documents/{id}/diff": {
            "get": {
                "tags": ["Documents"],
                "summary": "Block-level diff between two versions",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/documents/{id}/lock": {
            "post": {
                "tags": ["Locks"],
                "summary": "Acquire or refresh the edit lock",
                "responses": {
                    "200": {"description": "Lock held"},
                    "409": {"description": "Held by another user"}
                }
            },
            "delete": {
                "tags": ["Locks"],
                "summary": "Release the edit lock",
                "responses": {"204": {"description": "Released"}}
            }
        },
        "/versions/{versionId}/approvals": {
            "get": {
                "tags": ["Approvals"],
                "summary": "Approval chain for a version",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Approvals"],
                "summary": "Request an ordered sign-off chain",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/approvals/{id}/decision": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Record an approve or reject decision",
                "responses": {
                    "200": {"description": "Recorded"},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/versions/{versionId}/signatures": {
            "get": {
                "tags": ["Approvals"],
                "summary": "Digital signatures recorded for a version",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/redaction/patterns": {
            "post": {
                "tags": ["Redaction"],
                "summary": "Create a global redaction pattern",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/redaction/overrides": {
            "post": {
                "tags": ["Redaction"],
                "summary": "Create a scoped pattern override",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/documents/{id}/redaction": {
            "get": {
                "tags": ["Redaction"],
                "summary": "Preview the resolved pattern set",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/documents/{id}/versions/{number}/redact": {
            "post": {
                "tags": ["Redaction"],
                "summary": "Apply resolved patterns to a version",
                "responses": {"200": {"description": "Redacted content"}}
            }
        },
        "/documents/{id}/redaction/runs": {
            "get": {
                "tags": ["Redaction"],
                "summary": "Redaction run history",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/harvest/rules": {
            "post": {
                "tags": ["Harvest"],
                "summary": "Create a harvest rule",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/documents/{id}/harvest": {
            "post": {
                "tags": ["Harvest"],
                "summary": "Evaluate harvest rules for a section",
                "responses": {"200": {"description": "Harvested blocks"}}
            }
        },
        "/documents/{id}/harvest/executions": {
            "get": {
                "tags": ["Harvest"],
                "summary": "Rule execution history",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/submissions": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Create a submission package",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/submissions/{id}/validate": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Run pre-submission validation",
                "responses": {"200": {"description": "Validation report"}}
            }
        },
        "/submissions/{id}/submit": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Assemble the bundle and dispatch to the gateway",
                "responses": {
                    "200": {"description": "Submitted"},
                    "409": {"description": "Validation errors outstanding"}
                }
            }
        },
        "/submissions/{id}": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Package status and acknowledgment history",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/submissions/{id}/bundle-url": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Signed short-lived bundle download link",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/gateway/events": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Gateway acknowledgment webhook",
                "responses": {"202": {"description": "Accepted for processing"}}
            }
        },
        "/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "Query the audit trail",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/audit/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Export the audit trail as CSV",
                "responses": {"200": {"description": "CSV attachment"}}
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
