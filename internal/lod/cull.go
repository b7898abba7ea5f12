package lod

import "github.com/go-gl/mathgl/mgl32"

// ViewArgs is the per-view input to ShouldRender.
type ViewArgs struct {
	EyePosition       mgl32.Vec3
	LODAngleHalfTanSq float32
}

// AABox is an axis-aligned box given by its minimum corner and dimensions.
type AABox struct {
	Corner     mgl32.Vec3
	Dimensions mgl32.Vec3
}

// Center returns the box center.
func (b AABox) Center() mgl32.Vec3 {
	return b.Corner.Add(b.Dimensions.Mul(0.5))
}

// ShouldRender reports whether bounds subtends at least the LOD angle as seen
// from the view's eye. It compares squared half-tangents to avoid trig.
func ShouldRender(view ViewArgs, bounds AABox) bool {
	pos := view.EyePosition.Sub(bounds.Center())
	distSq := pos.Dot(pos)
	if distSq == 0 {
		return true
	}
	halfTanSq := 0.25 * bounds.Dimensions.Dot(bounds.Dimensions) / distSq
	return halfTanSq >= view.LODAngleHalfTanSq
}
