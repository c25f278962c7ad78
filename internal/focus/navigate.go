package focus

import "github.com/paulmach/orb"

// Step moves current by direction positions through a ring of n items.
// It returns -1 when the ring is empty.
func Step(current, direction, n int) int {
	if n <= 0 {
		return -1
	}
	i := (current + direction) % n
	if i < 0 {
		i += n
	}
	return i
}

// IndexOf returns the position of id in v, or -1.
func IndexOf(v Visible, id string) int {
	for i, r := range v.Records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Camera holds fly-to parameters for the map client.
type Camera struct {
	Center    orb.Point `json:"center" doc:"Target [lon, lat]"`
	Zoom      float64   `json:"zoom" doc:"Zoom level"`
	Pitch     float64   `json:"pitch" doc:"Pitch in degrees"`
	Bearing   float64   `json:"bearing" doc:"Bearing in degrees"`
	Speed     float64   `json:"speed" doc:"Flight speed factor"`
	Curve     float64   `json:"curve" doc:"Zoom curve factor"`
	Duration  int       `json:"duration,omitempty" doc:"Flight duration in milliseconds"`
	Essential bool      `json:"essential" doc:"Animate even when reduced motion is requested"`
}

// DenseCamera frames the dense area of an owner's trees.
func DenseCamera(center orb.Point) Camera {
	return Camera{
		Center:    center,
		Zoom:      14,
		Pitch:     45,
		Bearing:   -20,
		Speed:     1.2,
		Curve:     1.4,
		Duration:  2500,
		Essential: true,
	}
}

// MarkerCamera closes in on a single tree.
func MarkerCamera(center orb.Point) Camera {
	return Camera{
		Center:    center,
		Zoom:      16.3,
		Pitch:     80,
		Bearing:   0,
		Speed:     1,
		Curve:     1.2,
		Essential: true,
	}
}
