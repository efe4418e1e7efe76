package adminactions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	liveMigrateRequired = "host, block_migration and disk_over_commit must be specified for live migration."
	resetStateRequired  = "Desired state must be specified. Valid states are: active, error"
)

// Validate builds a Command from a raw body. It is pure: nothing is read
// from or written to the orchestration subsystem.
func Validate(desc *Descriptor, resourceID string, body json.RawMessage) (*Command, error) {
	cmd := &Command{Action: desc.Name, ResourceID: resourceID, Params: NoParams{}}
	if desc.Validate == nil {
		return cmd, nil
	}
	params, err := desc.Validate(body)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) && vErr.Action == "" {
			vErr.Action = desc.Name
		}
		return nil, err
	}
	cmd.Params = params
	return cmd, nil
}

// decodeObject decodes body as a JSON object. ok is false for anything else,
// including an empty body or null.
func decodeObject(body json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

type backupRequest struct {
	Name       string `validate:"required,max=255"`
	BackupType string `validate:"required,max=255"`
	Rotation   int    `validate:"gte=0"`
}

func validateBackup(body json.RawMessage) (Params, error) {
	invalid := func(field, msg string) error {
		return &ValidationError{Action: ActionCreateBackup, Field: field, Message: msg}
	}

	obj, ok := decodeObject(body)
	if !ok {
		return nil, invalid("", "Malformed createBackup entity")
	}
	for _, field := range []string{"name", "backup_type", "rotation"} {
		if _, present := obj[field]; !present {
			return nil, invalid(field, fmt.Sprintf("createBackup entity requires %s attribute", field))
		}
	}

	var req backupRequest
	if err := json.Unmarshal(obj["name"], &req.Name); err != nil {
		return nil, invalid("name", "createBackup attribute 'name' must be a string")
	}
	if err := json.Unmarshal(obj["backup_type"], &req.BackupType); err != nil {
		return nil, invalid("backup_type", "createBackup attribute 'backup_type' must be a string")
	}
	rotation, err := parseRotation(obj["rotation"])
	if err != nil {
		return nil, invalid("rotation", "createBackup attribute 'rotation' must be an integer")
	}
	req.Rotation = rotation

	if err := validate.Struct(req); err != nil {
		return nil, backupFieldError(err)
	}

	params := BackupParams{Name: req.Name, BackupType: req.BackupType, Rotation: req.Rotation}
	if raw, present := obj["metadata"]; present && !isNull(raw) {
		md := map[string]string{}
		if err := json.Unmarshal(raw, &md); err != nil {
			return nil, invalid("metadata", "Invalid metadata")
		}
		params.Metadata = md
	}
	return params, nil
}

// parseRotation accepts a JSON integer or a string holding one.
func parseRotation(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return 0, err
		}
		return n, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("rotation has type %T", v)
	}
}

func backupFieldError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Action: ActionCreateBackup, Message: "Malformed createBackup entity"}
	}
	fe := fieldErrs[0]
	field := map[string]string{"Name": "name", "BackupType": "backup_type", "Rotation": "rotation"}[fe.Field()]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("createBackup attribute '%s' must not be empty", field)
	case "max":
		msg = fmt.Sprintf("createBackup attribute '%s' must be at most %s characters", field, fe.Param())
	case "gte":
		msg = fmt.Sprintf("createBackup attribute '%s' must be greater than or equal to zero", field)
	default:
		msg = fmt.Sprintf("createBackup attribute '%s' is invalid", field)
	}
	return &ValidationError{Action: ActionCreateBackup, Field: field, Message: msg}
}

type liveMigrateRequest struct {
	Host *string `validate:"omitnil,min=1,max=255"`
}

func validateLiveMigrate(body json.RawMessage) (Params, error) {
	invalid := func(field, msg string) error {
		return &ValidationError{Action: ActionLiveMigrate, Field: field, Message: msg}
	}

	obj, ok := decodeObject(body)
	if !ok {
		return nil, invalid("", liveMigrateRequired)
	}
	for _, field := range []string{"host", "block_migration", "disk_over_commit"} {
		if _, present := obj[field]; !present {
			return nil, invalid(field, liveMigrateRequired)
		}
	}

	var req liveMigrateRequest
	if !isNull(obj["host"]) {
		var host string
		if err := json.Unmarshal(obj["host"], &host); err != nil {
			return nil, invalid("host", "os-migrateLive attribute 'host' must be a string or null")
		}
		req.Host = &host
	}
	if err := validate.Struct(req); err != nil {
		return nil, invalid("host", "os-migrateLive attribute 'host' must be between 1 and 255 characters")
	}

	block, err := parseBool(obj["block_migration"])
	if err != nil {
		return nil, invalid("block_migration", "os-migrateLive attribute 'block_migration' must be a boolean")
	}
	overCommit, err := parseBool(obj["disk_over_commit"])
	if err != nil {
		return nil, invalid("disk_over_commit", "os-migrateLive attribute 'disk_over_commit' must be a boolean")
	}

	return LiveMigrateParams{Host: req.Host, BlockMigration: block, DiskOverCommit: overCommit}, nil
}

// parseBool accepts a JSON boolean or a string such as "true" or "False".
func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

type resetStateRequest struct {
	State string `json:"state" validate:"required,oneof=active error"`
}

func validateResetState(body json.RawMessage) (Params, error) {
	obj, ok := decodeObject(body)
	if !ok {
		return nil, &ValidationError{Action: ActionResetState, Field: "state", Message: resetStateRequired}
	}
	var req resetStateRequest
	if raw, present := obj["state"]; present {
		if err := json.Unmarshal(raw, &req.State); err != nil {
			return nil, &ValidationError{Action: ActionResetState, Field: "state", Message: resetStateRequired}
		}
	}
	if err := validate.Struct(req); err != nil {
		return nil, &ValidationError{Action: ActionResetState, Field: "state", Message: resetStateRequired}
	}
	return ResetStateParams{State: compute.VMState(req.State)}, nil
}
