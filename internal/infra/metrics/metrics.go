package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "estoque_store_writes_total",
		Help: "Committed write transactions per collection.",
	}, []string{"collection"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "estoque_notifications_sent_total",
		Help: "Notifications dispatched, by condition kind.",
	}, []string{"kind"})

	TransferRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "estoque_transfer_rows_total",
		Help: "Rows moved through workbook import/export, by direction and sheet.",
	}, []string{"direction", "sheet"})
)
