// Package shape defines the Gaussian-shape Data Transfer Objects and the
// request/response structures shared by the HTTP API, the CLI and the
// screening worker.  No domain logic lives here, only plain data types that
// are safe to import from any layer.
package shape

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Geometry
// ─────────────────────────────────────────────────────────────────────────────

// Vec3 is a Cartesian point or direction.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ElementDTO is one Gaussian sphere.  A zero Hardness selects the default
// atom hardness; Color 0 marks a plain steric element.
type ElementDTO struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Radius   float64 `json:"radius"`
	Hardness float64 `json:"hardness,omitempty"`
	Color    int     `json:"color,omitempty"`
}

// ShapeDTO is a named list of elements.
type ShapeDTO struct {
	Name     string       `json:"name,omitempty"`
	Elements []ElementDTO `json:"elements"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Scores
// ─────────────────────────────────────────────────────────────────────────────

// Scores mirrors the similarity set computed for one pose.
type Scores struct {
	Overlap            float64 `json:"overlap"`
	RefSelfOverlap     float64 `json:"ref_self_overlap"`
	OverlaySelfOverlap float64 `json:"overlay_self_overlap"`
	Tanimoto           float64 `json:"tanimoto"`
	TverskyRef         float64 `json:"tversky_ref"`
	TverskyOverlay     float64 `json:"tversky_overlay"`
	ShapeTanimoto      float64 `json:"shape_tanimoto"`
	ColorTanimoto      float64 `json:"color_tanimoto"`
	ComboScore         float64 `json:"combo_score"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Properties
// ─────────────────────────────────────────────────────────────────────────────

// ProductOptions overrides the configured product-list settings.  Nil fields
// keep the server defaults.
type ProductOptions struct {
	MaxOrder       *int     `json:"max_order,omitempty"`
	DistanceCutoff *float64 `json:"distance_cutoff,omitempty"`
}

// PropertiesRequest asks for the volume integrals of one shape.
type PropertiesRequest struct {
	Shape   ShapeDTO        `json:"shape"`
	Options *ProductOptions `json:"options,omitempty"`
}

// PropertiesResponse reports the volume integrals of one shape.
type PropertiesResponse struct {
	Name                string     `json:"name,omitempty"`
	NumElements         int        `json:"num_elements"`
	NumProducts         int        `json:"num_products"`
	MaxProductOrder     int        `json:"max_product_order"`
	Volume              float64    `json:"volume"`
	SurfaceArea         float64    `json:"surface_area"`
	ElementSurfaceAreas []float64  `json:"element_surface_areas"`
	Centroid            Vec3       `json:"centroid"`
	PrincipalAxes       [3]Vec3    `json:"principal_axes"`
	PrincipalMoments    [3]float64 `json:"principal_moments"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Overlap
// ─────────────────────────────────────────────────────────────────────────────

// OverlapRequest evaluates the overlay, optionally moved by a row-major 4×4
// Transform, against the reference.
type OverlapRequest struct {
	Reference ShapeDTO        `json:"reference"`
	Overlay   ShapeDTO        `json:"overlay"`
	Transform []float64       `json:"transform,omitempty"`
	Strategy  string          `json:"strategy,omitempty"`
	Options   *ProductOptions `json:"options,omitempty"`
}

// OverlapResponse carries the overlap volume and the derived scores.
type OverlapResponse struct {
	Strategy string `json:"strategy"`
	Scores   Scores `json:"scores"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Alignment
// ─────────────────────────────────────────────────────────────────────────────

// AlignRequest maximises the overlap of Overlay onto Reference.
type AlignRequest struct {
	Reference ShapeDTO `json:"reference"`
	Overlay   ShapeDTO `json:"overlay"`
}

// AlignResponse describes the best pose found.  Transform is row-major 4×4 and
// maps the overlay's input coordinates onto the reference.
type AlignResponse struct {
	Reference   string     `json:"reference,omitempty"`
	Overlay     string     `json:"overlay,omitempty"`
	Transform   []float64  `json:"transform"`
	Quaternion  [4]float64 `json:"quaternion"`
	Translation Vec3       `json:"translation"`
	Metric      string     `json:"metric"`
	Score       float64    `json:"score"`
	Scores      Scores     `json:"scores"`
	Starts      int        `json:"starts"`
	Evaluations int        `json:"evaluations"`
	Cached      bool       `json:"cached"`
	DurationMs  int64      `json:"duration_ms"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Screening
// ─────────────────────────────────────────────────────────────────────────────

// ScreenRequest aligns every candidate onto one reference and ranks them.
// TopN and MinScore fall back to the server configuration when nil.
type ScreenRequest struct {
	Reference  ShapeDTO   `json:"reference"`
	Candidates []ShapeDTO `json:"candidates"`
	TopN       *int       `json:"top_n,omitempty"`
	MinScore   *float64   `json:"min_score,omitempty"`
}

// ScreenHit is one ranked candidate.
type ScreenHit struct {
	Rank      int       `json:"rank"`
	Index     int       `json:"index"`
	Name      string    `json:"name,omitempty"`
	Score     float64   `json:"score"`
	Scores    Scores    `json:"scores"`
	Transform []float64 `json:"transform"`
}

// ScreenFailure records a candidate that could not be aligned.
type ScreenFailure struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// ScreenResponse lists the ranked hits and per-candidate failures.
type ScreenResponse struct {
	Metric     string          `json:"metric"`
	Screened   int             `json:"screened"`
	Hits       []ScreenHit     `json:"hits"`
	Failures   []ScreenFailure `json:"failures,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Asynchronous screening jobs
// ─────────────────────────────────────────────────────────────────────────────

// JobStatus is the terminal state of a screening job.
type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Event types carried in the message envelope.
const (
	EventScreeningRequested = "shape.screening.requested"
	EventScreeningCompleted = "shape.screening.completed"
)

// ScreeningJob is the payload of a screening request message.  When Library
// is set the candidates come from that stored library and
// Request.Candidates must be empty.
type ScreeningJob struct {
	JobID   string        `json:"job_id"`
	Library string        `json:"library,omitempty"`
	Request ScreenRequest `json:"request"`
}

// ScreeningJobResult is the payload published once a job finishes.
// When the worker archives results, Archive locates the full response and
// Result keeps only the leading hits; Truncated reports the cut.
type ScreeningJobResult struct {
	JobID       string          `json:"job_id"`
	Status      JobStatus       `json:"status"`
	Result      *ScreenResponse `json:"result,omitempty"`
	Archive     *ArchivedResult `json:"archive,omitempty"`
	Truncated   bool            `json:"truncated,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// ArchivedResult locates a screening response stored in object storage.
type ArchivedResult struct {
	Bucket    string     `json:"bucket"`
	Key       string     `json:"key"`
	Size      int64      `json:"size"`
	URL       string     `json:"url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
