package bode

import "context"

type timebaseController struct {
	scope scopeIO
}

// Apply sets the horizontal scale so that periods cycles of freq span the
// screen and returns the scale the device accepted.
func (t *timebaseController) Apply(ctx context.Context, freq, periods float64) (float64, error) {
	ideal := periods / (HorizontalDivisions * freq)
	return t.scope.apply(ctx, SettingTimebaseScale, ideal)
}
