package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courier_connected_clients_count",
		Help: "The number of connected clients",
	})

	messagesReceivedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_messages_received_count",
		Help: "The total number of text messages received",
	})

	filesStoredCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_files_stored_count",
		Help: "The total number of uploads stored",
	})

	bytesStoredCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_bytes_stored_total",
		Help: "The total number of bytes written to the upload directory",
	})

	storedFilesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courier_stored_files",
		Help: "The number of file records in the store",
	})
)
