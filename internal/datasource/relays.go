package datasource

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"Relay_Selector_Go/internal/locations"
	"Relay_Selector_Go/pkg/model"
)

// DefaultProbePort 中继上通常开放的端口
const DefaultProbePort = 80

// DefaultRelaysPath returns where the Mullvad app caches its relay list on goos.
func DefaultRelaysPath(goos string) (string, error) {
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "linux":
		return "/var/cache/mullvad-vpn/relays.json", nil
	case "darwin":
		return "/Library/Caches/mullvad-vpn/relays.json", nil
	case "windows":
		return "C:/ProgramData/Mullvad VPN/cache/relays.json", nil
	default:
		return "", fmt.Errorf("unsupported system: %s", goos)
	}
}

type relayFile struct {
	Countries []struct {
		Name   string `json:"name"`
		Cities []struct {
			Name      string   `json:"name"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
			Relays    []struct {
				IPv4AddrIn   string          `json:"ipv4_addr_in"`
				Active       bool            `json:"active"`
				Owned        bool            `json:"owned"`
				EndpointData json.RawMessage `json:"endpoint_data"`
			} `json:"relays"`
		} `json:"cities"`
	} `json:"countries"`
}

// LoadOptions 控制从中继文件构建端点
type LoadOptions struct {
	Origin  locations.Coord
	Port    int
	Filters []Filter
}

// LoadRelaysFromFile 读取中继列表文件并转换为端点
func LoadRelaysFromFile(filePath string, opts LoadOptions) ([]model.Endpoint, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取中继文件 '%s': %w", filePath, err)
	}
	return ParseRelays(data, opts)
}

// ParseRelays converts the relay list into endpoints, skipping relays that
// speak neither OpenVPN nor WireGuard (bridges) and those rejected by a filter.
func ParseRelays(data []byte, opts LoadOptions) ([]model.Endpoint, error) {
	var file relayFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析中继文件 JSON 失败: %w", err)
	}
	if file.Countries == nil {
		return nil, fmt.Errorf("failed to parse the field %q: it's either missing or malformed", "countries")
	}

	port := opts.Port
	if port == 0 {
		port = DefaultProbePort
	}

	var endpoints []model.Endpoint
	for _, country := range file.Countries {
		for _, city := range country.Cities {
			if city.Latitude == nil || city.Longitude == nil {
				return nil, fmt.Errorf("city %q: missing latitude/longitude", city.Name)
			}
			coord := locations.Coord{Latitude: *city.Latitude, Longitude: *city.Longitude}
			distance := opts.Origin.DistanceKm(coord)

			for _, relay := range city.Relays {
				protocol, ok := resolveProtocol(relay.EndpointData)
				if !ok {
					continue
				}
				if relay.IPv4AddrIn == "" {
					return nil, fmt.Errorf("city %q: relay without %q", city.Name, "ipv4_addr_in")
				}

				ep := model.Endpoint{
					Host:       relay.IPv4AddrIn,
					Port:       port,
					Protocol:   protocol,
					Country:    country.Name,
					City:       city.Name,
					DistanceKm: distance,
					Active:     relay.Active,
					Owned:      relay.Owned,
				}
				if matchesAll(opts.Filters, ep) {
					endpoints = append(endpoints, ep)
				}
			}
		}
	}

	return endpoints, nil
}

// resolveProtocol reads endpoint_data, which is either the string "openvpn",
// the string "bridge", or an object with a "wireguard" key.
func resolveProtocol(raw json.RawMessage) (model.Protocol, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "openvpn" {
			return model.ProtocolOpenVPN, true
		}
		return 0, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if _, ok := obj["wireguard"]; ok {
			return model.ProtocolWireGuard, true
		}
	}
	return 0, false
}
