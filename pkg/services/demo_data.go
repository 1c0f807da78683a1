package services

import (
	"fmt"
	"math"
	"time"

	"demand-insight-api/pkg/models"

	"github.com/brianvoe/gofakeit/v6"
)

// DemoOptions デモデータの生成条件
type DemoOptions struct {
	Products int
	Months   int
	Seed     int64
	// Start 最初の月（ゼロ値なら2023年1月）
	Start time.Time
}

// デモデータの列（トルコ語の見出しでスキーマ推定を試せるようにする）
var demoColumns = []string{"Tarih", "Ürün Adı", "Kategori", "Adet", "Birim Fiyat", "Toplam Satış", "Tedarikçi", "Şube"}

// GenerateDemoDataset 季節係数に沿った月次の販売データを生成する
// 同じSeedなら同じデータになる
func GenerateDemoDataset(calendar *CalendarService, opts DemoOptions) *models.Dataset {
	if opts.Products <= 0 {
		opts.Products = 10
	}
	if opts.Months <= 0 {
		opts.Months = 24
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	faker := gofakeit.New(opts.Seed)
	categories := []string{"Meyve", "Süt Ürünleri", "Fırın", "İçecek", "Temizlik"}

	type demoProduct struct {
		name, category, supplier, branch string
		base, price, trend               float64
	}
	products := make([]demoProduct, 0, opts.Products)
	seen := map[string]bool{}
	for i := 0; i < opts.Products; i++ {
		name := faker.Fruit()
		if seen[name] {
			name = fmt.Sprintf("%s %d", name, i+1)
		}
		seen[name] = true
		products = append(products, demoProduct{
			name:     name,
			category: faker.RandomString(categories),
			supplier: faker.Company(),
			branch:   faker.City(),
			base:     float64(faker.IntRange(20, 400)),
			price:    roundTo(faker.Float64Range(2, 150), 2),
			trend:    faker.Float64Range(-0.01, 0.03),
		})
	}

	ds := &models.Dataset{Columns: append([]string(nil), demoColumns...)}
	for m := 0; m < opts.Months; m++ {
		date := addMonthsClamped(opts.Start, m)
		factor := 1.0
		if calendar != nil {
			factor = calendar.SeasonalFactor(int(date.Month()))
		}
		for _, p := range products {
			noise := faker.Float64Range(0.85, 1.15)
			qty := math.Max(0, math.Round(p.base*factor*(1+p.trend*float64(m))*noise))
			ds.Records = append(ds.Records, models.Record{
				"Tarih":        date.Format("2006-01-02"),
				"Ürün Adı":     p.name,
				"Kategori":     p.category,
				"Adet":         qty,
				"Birim Fiyat":  p.price,
				"Toplam Satış": roundTo(qty*p.price, 2),
				"Tedarikçi":    p.supplier,
				"Şube":         p.branch,
			})
		}
	}
	return ds
}
