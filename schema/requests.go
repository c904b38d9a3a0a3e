package schema

// Field schemas shared by request bodies. Absent and null values are accepted
// here so that the operation itself reports the precise reason.
var (
	credentialField   = Schema{"type": []any{"string", "null"}, "description": "Master credential"}
	dbNameField       = Schema{"type": []any{"string", "null"}, "description": "DB name"}
	dbCredentialField = Schema{"type": []any{"string", "null"}, "description": "DB credential"}
	idField           = Schema{"type": []any{"number", "null"}, "description": "Document ID"}
	itemField         = Schema{"description": "Document body, must be an object"}
	sqlField          = Schema{"type": []any{"string", "null"}, "description": "SQL statement"}
	paramsField       = Schema{"description": "Bind parameters: an array for positional, an object for named"}
)

func object(props Schema) Schema {
	return Schema{"type": "object", "properties": props}
}

// Request body schemas.
var (
	MasterRequest = object(Schema{
		"credential": credentialField,
	})
	DBAdminRequest = object(Schema{
		"credential":    credentialField,
		"db_name":       dbNameField,
		"db_credential": dbCredentialField,
	})
	DBRequest = object(Schema{
		"db_name":       dbNameField,
		"db_credential": dbCredentialField,
	})
	IDRequest = object(Schema{
		"db_name":       dbNameField,
		"db_credential": dbCredentialField,
		"id":            idField,
	})
	ItemRequest = object(Schema{
		"db_name":       dbNameField,
		"db_credential": dbCredentialField,
		"item":          itemField,
	})
	IDItemRequest = object(Schema{
		"db_name":       dbNameField,
		"db_credential": dbCredentialField,
		"id":            idField,
		"item":          itemField,
	})
	SQLRequest = object(Schema{
		"db_name":       dbNameField,
		"db_credential": dbCredentialField,
		"sql":           sqlField,
		"params":        paramsField,
	})
)

// Response body schemas.
var (
	ErrorResponse = object(Schema{
		"error": Schema{"type": "string", "description": "Error message"},
	})
	DBNamesResponse = object(Schema{
		"db_names": Schema{"type": "array", "items": Schema{"type": "string"}},
	})
	CreatedResponse = object(Schema{
		"result": Schema{"type": "string", "example": "Created"},
	})
	DocumentResponse = object(Schema{
		"result": Schema{"type": []any{"object", "null"}},
	})
	DocumentsResponse = object(Schema{
		"results": Schema{"type": "array", "items": Schema{"type": "object"}},
	})
	RunResponse = object(Schema{
		"result": object(Schema{
			"last_id": Schema{"type": "integer"},
			"changes": Schema{"type": "integer"},
		}),
	})
	RowResponse = object(Schema{
		"result": Schema{"type": []any{"object", "null"}},
	})
	RowsResponse = object(Schema{
		"results": Schema{"type": "array", "items": Schema{"type": "object"}},
	})
)
