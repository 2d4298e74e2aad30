package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resume_safari"

var (
	// CatalogUpserts 按目录与结果（matched、created）统计规范化写入。
	CatalogUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "upserts_total",
			Help:      "参考数据规范化写入次数。",
		},
		[]string{"catalog", "outcome"},
	)

	// GridBuilds 统计网格构建次数，source 为 cache 或 build。
	GridBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "snapshots_total",
			Help:      "简历技能网格快照读取次数。",
		},
		[]string{"source"},
	)

	// ResumeWrites 按操作统计简历聚合写入。
	ResumeWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resume",
			Name:      "writes_total",
			Help:      "简历创建、更新与删除次数。",
		},
		[]string{"operation", "result"},
	)
)
