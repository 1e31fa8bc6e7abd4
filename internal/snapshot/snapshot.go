package snapshot

import (
	"mcpdrift/internal/canonical"
)

// Section names, in report order
const (
	SectionServerInfo        = "serverInfo"
	SectionInstructions      = "instructions"
	SectionTools             = "tools"
	SectionPrompts           = "prompts"
	SectionResources         = "resources"
	SectionResourceTemplates = "resourceTemplates"
	SectionCustom            = "custom"
)

// SectionOrder is the canonical ordering of snapshot sections in reports
var SectionOrder = []string{
	SectionServerInfo,
	SectionInstructions,
	SectionTools,
	SectionPrompts,
	SectionResources,
	SectionResourceTemplates,
	SectionCustom,
}

// Snapshot is the full observable interface surface of one server
// instance at one point in time. Each section is either present (a
// value) or absent (nil: not supported or not implemented). A snapshot
// is created fresh per probe attempt and is immutable once returned;
// snapshots are never merged.
//
// When Err is set the snapshot is terminal: no section is populated and
// the pipeline must not attempt a comparison against it.
type Snapshot struct {
	ServerInfo        interface{}            `json:"serverInfo,omitempty"`
	Instructions      interface{}            `json:"instructions,omitempty"`
	Tools             interface{}            `json:"tools,omitempty"`
	Prompts           interface{}            `json:"prompts,omitempty"`
	Resources         interface{}            `json:"resources,omitempty"`
	ResourceTemplates interface{}            `json:"resourceTemplates,omitempty"`
	Custom            map[string]interface{} `json:"custom,omitempty"`
	Err               string                 `json:"error,omitempty"`
}

// Failed reports whether the probe failed before any section could be
// collected.
func (s *Snapshot) Failed() bool {
	return s.Err != ""
}

// Sections returns the present sections by name. Custom responses are
// exposed as one "custom" section (a name → response mapping) so diffs
// address individual messages as custom.<name>.
func (s *Snapshot) Sections() map[string]interface{} {
	out := make(map[string]interface{})
	if s.ServerInfo != nil {
		out[SectionServerInfo] = s.ServerInfo
	}
	if s.Instructions != nil {
		out[SectionInstructions] = s.Instructions
	}
	if s.Tools != nil {
		out[SectionTools] = s.Tools
	}
	if s.Prompts != nil {
		out[SectionPrompts] = s.Prompts
	}
	if s.Resources != nil {
		out[SectionResources] = s.Resources
	}
	if s.ResourceTemplates != nil {
		out[SectionResourceTemplates] = s.ResourceTemplates
	}
	if len(s.Custom) > 0 {
		custom := make(map[string]interface{}, len(s.Custom))
		for k, v := range s.Custom {
			custom[k] = v
		}
		out[SectionCustom] = custom
	}
	return out
}

// SectionBlobs serializes each present section to canonical JSON. The
// blobs are suitable for direct file persistence and for byte-equality
// checks across repeated probes of an unchanged server.
func (s *Snapshot) SectionBlobs() (map[string][]byte, error) {
	sections := s.Sections()
	blobs := make(map[string][]byte, len(sections))
	for name, value := range sections {
		data, err := canonical.Marshal(value)
		if err != nil {
			return nil, err
		}
		blobs[name] = data
	}
	return blobs, nil
}

// FromSections reconstructs a snapshot from a section map, as loaded
// from the baseline store.
func FromSections(sections map[string]interface{}) *Snapshot {
	s := &Snapshot{}
	for name, value := range sections {
		switch name {
		case SectionServerInfo:
			s.ServerInfo = value
		case SectionInstructions:
			s.Instructions = value
		case SectionTools:
			s.Tools = value
		case SectionPrompts:
			s.Prompts = value
		case SectionResources:
			s.Resources = value
		case SectionResourceTemplates:
			s.ResourceTemplates = value
		case SectionCustom:
			if m, ok := value.(map[string]interface{}); ok {
				s.Custom = m
			}
		}
	}
	return s
}
