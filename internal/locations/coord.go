package locations

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
)

// DefaultLocationURL 返回调用方公网 IP 的地理位置
const DefaultLocationURL = "https://am.i.mullvad.net/json"

const earthRadiusKm = 6371.0

// Coord is a point on Earth in degrees.
type Coord struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceKm returns the great-circle distance between c and other using the
// haversine formula on a spherical Earth.
func (c Coord) DistanceKm(other Coord) float64 {
	phi1 := toRadians(c.Latitude)
	phi2 := toRadians(other.Latitude)
	lam1 := toRadians(c.Longitude)
	lam2 := toRadians(other.Longitude)

	hav := haversine(phi2-phi1) + math.Cos(phi1)*math.Cos(phi2)*haversine(lam2-lam1)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(hav))
}

func haversine(theta float64) float64 {
	return (1 - math.Cos(theta)) / 2
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Fetch 通过 HTTP 查询当前位置
func Fetch(ctx context.Context, client *http.Client, url string) (Coord, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultLocationURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Coord{}, fmt.Errorf("build location request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Coord{}, fmt.Errorf("fetch location: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coord{}, fmt.Errorf("fetch location: bad status: %s", resp.Status)
	}

	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Coord{}, fmt.Errorf("parse location response: %w", err)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return Coord{}, fmt.Errorf("location response has no latitude/longitude")
	}
	return Coord{Latitude: *body.Latitude, Longitude: *body.Longitude}, nil
}
