package models

import "time"

// ClusterAssignment places one sequence in a cluster. ClusterID is only
// stable within a single clustering run.
type ClusterAssignment struct {
	SequenceID         string  `json:"sequence_id" yaml:"sequence_id"`
	ClusterID          int     `json:"cluster_id" yaml:"cluster_id"`
	DistanceToCentroid float64 `json:"distance_to_centroid" yaml:"distance_to_centroid"`
}

// BehavioralLibraryEntry summarizes one cluster as a reusable workflow.
type BehavioralLibraryEntry struct {
	ClusterID             int      `json:"cluster_id" yaml:"cluster_id"`
	Name                  string   `json:"name" yaml:"name"`
	RepresentativeID      string   `json:"representative_id" yaml:"representative_id"`
	RepresentativePattern []string `json:"representative_pattern" yaml:"representative_pattern"`
	Size                  int      `json:"size" yaml:"size"`
	Frequency             float64  `json:"frequency" yaml:"frequency"`
	Workspaces            []string `json:"workspaces" yaml:"workspaces"`
	DominantIntent        string   `json:"dominant_intent" yaml:"dominant_intent"`
}

// BehavioralLibrary is the persisted result of one clustering run.
type BehavioralLibrary struct {
	RunID       string                   `json:"run_id" yaml:"run_id"`
	Rung        string                   `json:"rung" yaml:"rung"`
	Strategy    string                   `json:"strategy" yaml:"strategy"`
	Workspace   string                   `json:"workspace" yaml:"workspace"`
	Complete    bool                     `json:"complete" yaml:"complete"`
	BuiltAt     time.Time                `json:"built_at" yaml:"built_at"`
	Entries     []BehavioralLibraryEntry `json:"entries" yaml:"entries"`
	Assignments []ClusterAssignment      `json:"assignments,omitempty" yaml:"assignments,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// CPResult is the context precision of one prompt. CP is nil when the
// prompt declared no context files.
type CPResult struct {
	PromptID           string   `json:"prompt_id,omitempty"`
	CP                 *float64 `json:"cp"`
	UnusedContextFiles []string `json:"unused_context_files"`
	Declared           int      `json:"declared"`
	Touched            int      `json:"touched"`
}
