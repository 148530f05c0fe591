// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - IdentifierPool: pool FIFO de ids com dreno temporizado no encerramento
//   - PoolMetrics: observer do pool exportado via Prometheus
//   - LimiterStore: token bucket por cliente usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore: estatísticas do ciclo de vida dos slots
package infra
