package webrtc

// VideoConstraints bound the capture resolution in pixels.
type VideoConstraints struct {
	MinWidth, IdealWidth, MaxWidth    int
	MinHeight, IdealHeight, MaxHeight int
}

// Constraints select which local media to capture. A nil Video skips the
// camera.
type Constraints struct {
	Video *VideoConstraints
	Audio bool
}

// DefaultConstraints asks for HD video with audio.
func DefaultConstraints() Constraints {
	return Constraints{
		Video: &VideoConstraints{
			MinWidth: 640, IdealWidth: 1920, MaxWidth: 1920,
			MinHeight: 480, IdealHeight: 1080, MaxHeight: 1080,
		},
		Audio: true,
	}
}

// VideoOnly is the fallback used when a session starts without local media.
func VideoOnly() Constraints {
	return Constraints{Video: &VideoConstraints{}}
}

func (c Constraints) Empty() bool { return c.Video == nil && !c.Audio }
