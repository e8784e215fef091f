// Package store implements Laminark's embedded relational+FTS+vector store:
// migrations, project-scoped repositories, and transactional writes over a
// single SQLite database file shared across projects.
package store

import (
	"errors"
	"time"
)

// Sentinel errors for the Store's degradation contract (spec.md §7). Callers
// use errors.Is against these instead of string matching.
var (
	// ErrStoreUnavailable is returned by every operation once the Store has
	// hit a fatal open/migration error. The caller degrades instead of
	// crashing.
	ErrStoreUnavailable = errors.New("store: unavailable")
	// ErrNotFound is returned by GetByID-style lookups that find no row.
	ErrNotFound = errors.New("store: not found")
	// ErrBusy is returned when a write could not acquire the database lock
	// within the configured busy timeout.
	ErrBusy = errors.New("store: busy timeout exceeded")
)

// Classification is the optional result of the background classifier
// enricher described in spec.md §9's Open Questions.
type Classification string

const (
	ClassificationDiscovery   Classification = "discovery"
	ClassificationProblem     Classification = "problem"
	ClassificationSolution    Classification = "solution"
	ClassificationNoise       Classification = "noise"
	ClassificationUnclassified Classification = "unclassified"
)

// ObservationKind distinguishes durable reference material from point-in-time
// events.
type ObservationKind string

const (
	ObservationKindReference ObservationKind = "reference"
	ObservationKindEvent     ObservationKind = "event"
)

// Observation is a captured semantic event (spec.md §3).
type Observation struct {
	ID             string
	ProjectHash    string
	Title          string
	Content        string
	ContentHash    string
	Source         string
	SessionID      string
	Embedding      []float32
	EmbeddingModel string
	Classification Classification
	Kind           ObservationKind
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Visible reports whether the observation should appear in default reads.
func (o *Observation) Visible() bool { return o.DeletedAt == nil }

// Session is a coherent activity window (spec.md §3).
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   string
}

// ObservationSnapshot is a value-copy of an observation embedded inside a
// Stash. It survives deletion of the source observation.
type ObservationSnapshot struct {
	ID        string
	Content   string
	Kind      ObservationKind
	Timestamp time.Time
	Embedding []float32
}

// StashStatus is the lifecycle state of a Stash.
type StashStatus string

const (
	StashStatusStashed StashStatus = "stashed"
	StashStatusResumed StashStatus = "resumed"
)

// Stash is a preserved context thread (spec.md §3).
type Stash struct {
	ID                   string
	ProjectHash          string
	SessionID            string
	TopicLabel           string
	Summary              string
	ObservationSnapshots []ObservationSnapshot
	CreatedAt            time.Time
	ResumedAt            *time.Time
	Status               StashStatus
}

// ShiftDecision is the audit log row for a single topic-detection run
// (spec.md §3). Append-only.
type ShiftDecision struct {
	ID         string
	SessionID  string
	Distance   float64
	Threshold  float64
	Shifted    bool
	Confidence *float64
	CreatedAt  time.Time
}

// Notification is a consume-once message addressed to the next tool call.
type Notification struct {
	ID          string
	ProjectHash string
	Text        string
	CreatedAt   time.Time
}

// NodeType enumerates the typed entities in the knowledge graph.
type NodeType string

const (
	NodeTypeFile      NodeType = "File"
	NodeTypeProject   NodeType = "Project"
	NodeTypeDecision  NodeType = "Decision"
	NodeTypeProblem   NodeType = "Problem"
	NodeTypeSolution  NodeType = "Solution"
	NodeTypeTool      NodeType = "Tool"
	NodeTypeReference NodeType = "Reference"
)

// GraphNode is a typed entity in the knowledge graph (spec.md §3).
type GraphNode struct {
	ID             string
	ProjectHash    string
	Name           string
	Type           NodeType
	Metadata       map[string]any
	ObservationIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EdgeType enumerates the typed directed relationships between graph nodes.
type EdgeType string

const (
	EdgeTypeUses       EdgeType = "uses"
	EdgeTypeDependsOn  EdgeType = "depends_on"
	EdgeTypeDecidedBy  EdgeType = "decided_by"
	EdgeTypeRelatedTo  EdgeType = "related_to"
	EdgeTypePartOf     EdgeType = "part_of"
	EdgeTypeCausedBy   EdgeType = "caused_by"
	EdgeTypeSolvedBy   EdgeType = "solved_by"
)

// GraphEdge is a typed, weighted directed relationship between two nodes.
type GraphEdge struct {
	ID          string
	ProjectHash string
	SourceID    string
	TargetID    string
	Type        EdgeType
	Weight      float64
	Metadata    map[string]any
	CreatedAt   time.Time
}

// ToolType enumerates the provenance categories for registry entries.
type ToolType string

const (
	ToolTypeBuiltin      ToolType = "builtin"
	ToolTypeMCPServer    ToolType = "mcp_server"
	ToolTypeMCPTool      ToolType = "mcp_tool"
	ToolTypeSlashCommand ToolType = "slash_command"
	ToolTypeSkill        ToolType = "skill"
	ToolTypePlugin       ToolType = "plugin"
	ToolTypeUnknown      ToolType = "unknown"
)

// ToolScope enumerates visibility scopes for registry entries.
type ToolScope string

const (
	ToolScopeGlobal  ToolScope = "global"
	ToolScopeProject ToolScope = "project"
	ToolScopePlugin  ToolScope = "plugin"
)

// ToolRegistryEntry is a known tool with provenance (spec.md §3).
type ToolRegistryEntry struct {
	Name        string
	Type        ToolType
	Scope       ToolScope
	Source      string
	ProjectHash string // empty for global entries
	Description string
	ServerName  string
	UsageCount  int64
	LastUsedAt  *time.Time
}

// ToolUsageEvent is a per-invocation row for temporal ranking.
type ToolUsageEvent struct {
	ToolName    string
	ProjectHash string
	Timestamp   time.Time
}

// ObservationFilter narrows List/Search queries over observations.
type ObservationFilter struct {
	ProjectHash    string
	SessionID      string
	IncludeDeleted bool
	Source         string
	Limit          int
	Offset         int
}

// NodeFilter narrows graph node queries.
type NodeFilter struct {
	ProjectHash string
	Type        NodeType
	NamePrefix  string
	Limit       int
}
