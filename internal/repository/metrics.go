package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CorruptRecordsSkipped — записи, пропущенные при сканировании из-за ошибки десериализации.
var CorruptRecordsSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mm_corrupt_records_skipped_total",
		Help: "Количество повреждённых записей, пропущенных при сканировании пространства имён",
	},
	[]string{"namespace"},
)
