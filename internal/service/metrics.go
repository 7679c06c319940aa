package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики операций над медиа.
var (
	// mediaOperationsTotal — операции по типу и результату (ok, error).
	mediaOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_media_operations_total",
		Help: "Количество операций над медиа по типу и результату",
	}, []string{"operation", "result"})

	// storedBytesTotal — байты, записанные на диск при загрузке.
	storedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_stored_bytes_total",
		Help: "Объём данных, записанных в хранилище блобов",
	})

	// compressedUploadsTotal — загрузки, сохранённые в сжатом виде.
	compressedUploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_compressed_uploads_total",
		Help: "Количество загрузок, сохранённых в сжатом виде",
	})

	// dualWriteFailuresTotal — сбои второй записи (индекс владельца).
	dualWriteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_dual_write_failures_total",
		Help: "Сбои второй записи двухпространственных операций",
	}, []string{"operation"})

	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_cache_hits_total",
		Help: "Попадания в LRU-кэш",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_cache_misses_total",
		Help: "Промахи LRU-кэша",
	}, []string{"cache"})
)

func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mediaOperationsTotal.WithLabelValues(operation, result).Inc()
}
