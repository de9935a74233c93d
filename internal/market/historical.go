package market

import "context"

// VolumeTrend 描述成交量的趋势判断。
type VolumeTrend struct {
	Direction     string  `json:"direction"`
	ChangePercent float64 `json:"change_percent"`
	CurrentMA     float64 `json:"current_ma"`
	WeekAgoMA     float64 `json:"week_ago_ma"`
}

// KeyLevels 描述关键支撑与阻力位。
type KeyLevels struct {
	StrongSupport    float64   `json:"strong_support"`
	StrongResistance float64   `json:"strong_resistance"`
	SupportLevels    []float64 `json:"support_levels"`
	ResistanceLevels []float64 `json:"resistance_levels"`
}

// HistoricalMetrics 汇总池子过去一段时间的表现。
type HistoricalMetrics struct {
	AvgAPR7d          float64     `json:"avg_apr_7d"`
	VolumeTrend       VolumeTrend `json:"volume_trend"`
	ImpermanentLoss7d float64     `json:"impermanent_loss_7d"`
	PriceVolatility   float64     `json:"price_volatility"`
	KeyLevels         KeyLevels   `json:"key_levels"`
}

// HistoricalService 提供池子的历史表现数据。
type HistoricalService struct{}

// NewHistoricalService 构造历史数据服务。
func NewHistoricalService() *HistoricalService {
	return &HistoricalService{}
}

// GetPoolHistory 返回池子的历史指标。
// TODO: 接入子图的历史端点，当前返回基线估计值。
func (s *HistoricalService) GetPoolHistory(_ context.Context, _ string) (*HistoricalMetrics, error) {
	return &HistoricalMetrics{
		AvgAPR7d: 25.5,
		VolumeTrend: VolumeTrend{
			Direction:     "up",
			ChangePercent: 5.5,
			CurrentMA:     100000.0,
			WeekAgoMA:     95000.0,
		},
		ImpermanentLoss7d: 0.02,
		PriceVolatility:   0.015,
		KeyLevels: KeyLevels{
			StrongSupport:    1.05,
			StrongResistance: 1.15,
			SupportLevels:    []float64{1.05, 1.03, 1.01},
			ResistanceLevels: []float64{1.15, 1.17, 1.20},
		},
	}, nil
}
