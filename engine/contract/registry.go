// Package contract loads and validates cross-service payloads against a
// fixed set of versioned JSON schemas. Schemas are immutable for the
// lifetime of the process.
package contract

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tripscoutai/tripscout/engine/errs"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Version is the contract envelope version every response echoes.
const Version = "1.0"

// Schema names, one per request/response pair per retrieval contract.
const (
	TravelEvidenceRequest   = "travel_evidence_request"
	TravelEvidenceResponse  = "travel_evidence_response"
	ProductCandidatesRequest  = "product_candidates_request"
	ProductCandidatesResponse = "product_candidates_response"
	TravelGraphRequest      = "travel_graph_request"
	TravelGraphResponse     = "travel_graph_response"
	VisionRequest           = "vision_request"
	VisionResponse          = "vision_response"
	STTRequest              = "stt_request"
	STTResponse             = "stt_response"
	TTSRequest              = "tts_request"
	TTSResponse             = "tts_response"
)

var allSchemas = []string{
	TravelEvidenceRequest, TravelEvidenceResponse,
	ProductCandidatesRequest, ProductCandidatesResponse,
	TravelGraphRequest, TravelGraphResponse,
	VisionRequest, VisionResponse,
	STTRequest, STTResponse,
	TTSRequest, TTSResponse,
}

// Registry validates payloads against compiled JSON schemas loaded once at
// construction; it is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewRegistry compiles the embedded schema set. It fails fast (a
// FatalMisconfiguration) if any schema is missing or malformed, since a
// broken contract set cannot be serviced at all.
func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	for _, name := range allSchemas {
		data, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, errs.FatalMisconfiguration(fmt.Sprintf("contract: missing schema %s: %v", name, err))
		}
		if err := compiler.AddResource(name+".json", bytes.NewReader(data)); err != nil {
			return nil, errs.FatalMisconfiguration(fmt.Sprintf("contract: add schema %s: %v", name, err))
		}
	}

	r := &Registry{schemas: make(map[string]*jsonschema.Schema, len(allSchemas))}
	for _, name := range allSchemas {
		sch, err := compiler.Compile(name + ".json")
		if err != nil {
			return nil, errs.FatalMisconfiguration(fmt.Sprintf("contract: compile schema %s: %v", name, err))
		}
		r.schemas[name] = sch
	}
	return r, nil
}

// Validate checks payload (any JSON-marshalable value) against the named
// schema. A violation is always an errs.ErrContractViolation.
func (r *Registry) Validate(payload any, schemaName string) error {
	r.mu.RLock()
	sch, ok := r.schemas[schemaName]
	r.mu.RUnlock()
	if !ok {
		return errs.FatalMisconfiguration("contract: unknown schema " + schemaName)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errs.ParseFailure("contract: marshal payload: " + err.Error())
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errs.ParseFailure("contract: unmarshal payload: " + err.Error())
	}

	if err := sch.Validate(doc); err != nil {
		return errs.Wrap(fmt.Sprintf("contract: %s: %v", schemaName, err), errs.ErrContractViolation)
	}
	return nil
}

// ValidateBytes is Validate for raw JSON bytes (e.g. straight off an
// http.Request body), avoiding a marshal round-trip.
func (r *Registry) ValidateBytes(data []byte, schemaName string) error {
	r.mu.RLock()
	sch, ok := r.schemas[schemaName]
	r.mu.RUnlock()
	if !ok {
		return errs.FatalMisconfiguration("contract: unknown schema " + schemaName)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errs.ParseFailure("contract: unmarshal payload: " + err.Error())
	}
	if err := sch.Validate(doc); err != nil {
		return errs.Wrap(fmt.Sprintf("contract: %s: %v", schemaName, err), errs.ErrContractViolation)
	}
	return nil
}
