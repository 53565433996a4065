package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"radio-station/internal/apperr"
)

const geocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// WeatherService 地理编码 + 天气预报
type WeatherService struct {
	client      *http.Client
	mapsKey     string
	geocodeURL  string
	forecastURL string
}

// NewWeatherService 创建天气服务
func NewWeatherService(mapsKey, forecastURL string) *WeatherService {
	return &WeatherService{
		client:      &http.Client{Timeout: 30 * time.Second},
		mapsKey:     mapsKey,
		geocodeURL:  geocodeURL,
		forecastURL: forecastURL,
	}
}

// WithGeocodeURL 替换地理编码接口地址
func (w *WeatherService) WithGeocodeURL(u string) *WeatherService {
	w.geocodeURL = u
	return w
}

// Location 经纬度
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location Location `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode 地址转经纬度
func (w *WeatherService) Geocode(ctx context.Context, address string) (Location, error) {
	q := url.Values{"address": {address}, "key": {w.mapsKey}}
	var resp geocodeResponse
	if err := w.getJSON(ctx, w.geocodeURL+"?"+q.Encode(), &resp); err != nil {
		return Location{}, fmt.Errorf("地理编码失败: %w", err)
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return Location{}, fmt.Errorf("地址 %s 无法解析: %s", address, resp.Status)
	}
	return resp.Results[0].Geometry.Location, nil
}

type forecastResponse struct {
	Daily struct {
		Time                        []string  `json:"time"`
		WeatherCode                 []int     `json:"weather_code"`
		TemperatureMax              []float64 `json:"temperature_2m_max"`
		TemperatureMin              []float64 `json:"temperature_2m_min"`
		PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

// Forecast 返回地点当天的天气概要
func (w *WeatherService) Forecast(ctx context.Context, place string, day time.Time) (string, error) {
	loc, err := w.Geocode(ctx, place)
	if err != nil {
		return "", err
	}
	date := day.Format("2006-01-02")
	q := url.Values{
		"latitude":   {fmt.Sprintf("%.4f", loc.Lat)},
		"longitude":  {fmt.Sprintf("%.4f", loc.Lng)},
		"daily":      {"weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max"},
		"timezone":   {"auto"},
		"start_date": {date},
		"end_date":   {date},
	}
	var resp forecastResponse
	if err := w.getJSON(ctx, w.forecastURL+"?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("获取天气失败: %w", err)
	}
	d := resp.Daily
	if len(d.Time) == 0 || len(d.WeatherCode) == 0 || len(d.TemperatureMax) == 0 || len(d.TemperatureMin) == 0 {
		return "", fmt.Errorf("%s 没有 %s 的天气数据", place, date)
	}
	summary := fmt.Sprintf("%s: %s, max %.1f°C, min %.1f°C", d.Time[0], WeatherDescription(d.WeatherCode[0]), d.TemperatureMax[0], d.TemperatureMin[0])
	if len(d.PrecipitationProbabilityMax) > 0 {
		summary += fmt.Sprintf(", precipitation %.0f%%", d.PrecipitationProbabilityMax[0])
	}
	return summary, nil
}

func (w *WeatherService) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return apperr.Wrap(err, apperr.KindTransient, "请求失败")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperr.Newf(apperr.KindTransient, "HTTP状态码 %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var weatherCodes = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	56: "light freezing drizzle",
	57: "dense freezing drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	66: "light freezing rain",
	67: "heavy freezing rain",
	71: "slight snow fall",
	73: "moderate snow fall",
	75: "heavy snow fall",
	77: "snow grains",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// WeatherDescription WMO天气代码的描述
func WeatherDescription(code int) string {
	if s, ok := weatherCodes[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown (%d)", code)
}
