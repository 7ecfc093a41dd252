package domain

import "fmt"

// RejectReason classifies why a rendered sample failed its selection criteria.
type RejectReason string

const (
	// RejectTooManyImages: more than five point-source images were found.
	RejectTooManyImages RejectReason = "too_many_images"
	// RejectTooFewImages: fewer than two images, i.e. not a lens.
	RejectTooFewImages RejectReason = "too_few_images"
	// RejectDoublesQuadsOnly: image count outside {2,4} with doubles/quads enforced.
	RejectDoublesQuadsOnly RejectReason = "doubles_quads_only"
	// RejectQuadsOnly: image count != 4 with quads enforced.
	RejectQuadsOnly RejectReason = "quads_only"
	// RejectMagnificationCut: total flux ratio below the configured cut.
	RejectMagnificationCut RejectReason = "magnification_cut"
	// RejectPointSourceMagnification: mean |magnification| below the point-source cut.
	RejectPointSourceMagnification RejectReason = "point_source_magnification_cut"
)

// Rejection is the typed recoverable failure of a selection criterion.
// It travels through return values, never through the error channel:
// callers are expected to draw another sample and retry.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) String() string {
	if r == nil {
		return "<accepted>"
	}
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// DrawResult is the outcome of one draw-image pass. Exactly one of the two
// shapes holds: Rejection == nil with a non-nil Image and Metadata, or
// Rejection != nil with both sentinels nil.
type DrawResult struct {
	Image     *Grid
	Metadata  Record
	Rejection *Rejection
}

// Accepted reports whether the draw produced an image.
func (r DrawResult) Accepted() bool {
	return r.Rejection == nil
}

// Rejected constructs the sentinel result for a criteria failure.
func Rejected(reason RejectReason, detail string) DrawResult {
	return DrawResult{Rejection: &Rejection{Reason: reason, Detail: detail}}
}
