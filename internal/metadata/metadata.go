// Package metadata parses and validates the package metadata document that
// drives an installation: the package block, the ordered install_steps,
// the pre/post install scripts that run outside the transactional
// envelope, and the host requirements gate.
package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"optiinfra/pkginstall/internal/model"
	"optiinfra/pkginstall/internal/txn"
)

// PackageInfo is the metadata document's package block.
type PackageInfo struct {
	Name        string `yaml:"name" validate:"required"`
	Version     string `yaml:"version" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
	License     string `yaml:"license,omitempty"`
}

// Requirements is checked before a transaction may begin.
type Requirements struct {
	MinMemoryMB      int64    `yaml:"min_memory,omitempty"`
	MinDiskSpaceMB   int64    `yaml:"min_disk_space,omitempty"`
	OSVersion        string   `yaml:"os_version,omitempty"`
	Architectures    []string `yaml:"architectures,omitempty"`
}

// Step is one transactional step as written in the document: a type tag,
// an optional rollback strategy, and handler-specific fields captured via
// YAML's inline-map mechanism.
type Step struct {
	Type     model.StepType         `yaml:"type" validate:"required"`
	Rollback model.RollbackStrategy `yaml:"rollback,omitempty"`
	Fields   map[string]interface{} `yaml:",inline"`
}

// ScriptStep is one pre_install/post_install entry: a bare command run
// outside the transactional envelope, with no compensation.
type ScriptStep struct {
	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args,omitempty"`
}

// Document is the full parsed metadata document.
type Document struct {
	Package      PackageInfo  `yaml:"package" validate:"required"`
	InstallSteps []Step       `yaml:"install_steps" validate:"required,min=1,dive"`
	PreInstall   []ScriptStep `yaml:"pre_install,omitempty"`
	PostInstall  []ScriptStep `yaml:"post_install,omitempty"`
	Requirements Requirements `yaml:"requirements,omitempty"`
	Dependencies []string     `yaml:"dependencies,omitempty"`
	Conflicts    []string     `yaml:"conflicts,omitempty"`
}

var validate = validator.New()

// autoCompensated is the set of step types whose handler implements a real
// built-in compensator, so "rollback: auto" is a meaningful default.
var autoCompensated = map[model.StepType]bool{
	model.StepAptPackage:     true,
	model.StepFileCopy:       true,
	model.StepSystemdService: true,
	model.StepUserManagement: true,
}

// Parse decodes a YAML metadata document and validates its struct shape
// plus the rollback-strategy rule from the source's Open Question (a):
// custom_script and ansible_playbook steps have no built-in compensator,
// so they must declare "manual"/"ansible" (or "none") explicitly; an
// omitted strategy or an explicit "auto" is rejected for them.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("metadata: decode: %w", err)
	}

	for i := range doc.InstallSteps {
		if autoCompensated[doc.InstallSteps[i].Type] {
			if doc.InstallSteps[i].Rollback == "" {
				doc.InstallSteps[i].Rollback = model.RollbackAuto
			}
			continue
		}
		if doc.InstallSteps[i].Rollback == "" || doc.InstallSteps[i].Rollback == model.RollbackAuto {
			return nil, fmt.Errorf("metadata: install_steps[%d] (%s) must declare an explicit rollback strategy (manual, ansible, or none)",
				i, doc.InstallSteps[i].Type)
		}
	}

	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("metadata: validate: %w", err)
	}
	for i, step := range doc.InstallSteps {
		switch step.Type {
		case model.StepAptPackage, model.StepFileCopy, model.StepSystemdService,
			model.StepUserManagement, model.StepCustomScript, model.StepAnsiblePlaybook:
		default:
			return nil, fmt.Errorf("metadata: install_steps[%d]: unknown type %q", i, step.Type)
		}
	}

	return &doc, nil
}

// StepInputs converts the document's install_steps into the shape the
// Transaction Manager's Execute expects.
func (d *Document) StepInputs() ([]txn.StepInput, error) {
	out := make([]txn.StepInput, 0, len(d.InstallSteps))
	for i, step := range d.InstallSteps {
		data, err := json.Marshal(step.Fields)
		if err != nil {
			return nil, fmt.Errorf("metadata: encode install_steps[%d] fields: %w", i, err)
		}
		out = append(out, txn.StepInput{Type: step.Type, Data: data, Rollback: step.Rollback})
	}
	return out, nil
}

// Canonical re-encodes the document as deterministic JSON, suitable as the
// metadata blob the Transaction Manager fingerprints and persists.
func (d *Document) Canonical() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("metadata: encode canonical form: %w", err)
	}
	return data, nil
}
