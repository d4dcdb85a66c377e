package safe

import "math"

// WGS84 ellipsoid and UTM projection constants.
const (
	wgs84SemiMajor = 6378137.0
	wgs84Flat      = 1 / 298.257223563

	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
)

// utmToLonLat converts UTM easting/northing on the WGS84 ellipsoid to
// geographic coordinates in degrees, using the standard inverse series
// (Snyder, Map Projections: A Working Manual, transverse Mercator).
// Granule geocoding is the only caller; the corner coordinates it feeds in
// sit well inside the series' accuracy range.
func utmToLonLat(zone int, north bool, easting, northing float64) (lon, lat float64) {
	e2 := wgs84Flat * (2 - wgs84Flat)
	ep2 := e2 / (1 - e2)
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	x := easting - utmFalseEasting
	y := northing
	if !north {
		y -= utmFalseNorthing
	}

	// Footpoint latitude from the meridian distance.
	m := y / utmScale
	mu := m / (wgs84SemiMajor * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)
	tanPhi1 := sinPhi1 / cosPhi1

	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	n1 := wgs84SemiMajor / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := wgs84SemiMajor * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * utmScale)

	latRad := phi1 - (n1 * tanPhi1 / r1) *
		(d*d/2 -
			(5+3*t1+10*c1-4*c1*c1-9*ep2)*d*d*d*d/24 +
			(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d*d*d*d*d*d/720)

	centralMeridian := float64((zone-1)*6-180+3) * math.Pi / 180
	lonRad := centralMeridian + (d-
		(1+2*t1+c1)*d*d*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d*d*d*d*d/120)/cosPhi1

	return lonRad * 180 / math.Pi, latRad * 180 / math.Pi
}
