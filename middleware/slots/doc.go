// Package slots fornece o adapter HTTP (net/http) que empresta um slot do pool
// de identificadores para cada requisição em voo.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (admissão, empréstimo com timeout, dreno) sem net/http
//   - infra: implementações concretas (IdentifierPool, token bucket, stats, métricas)
//   - slots (este pacote): middleware HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//	1) Extrai a chave do cliente (IP/header/XFF)
//	2) Pede à camada application a admissão e um slot
//	3) Se recusado, responde 429 (admissão) ou 503 (pool esgotado/encerrando)
//	4) Se emprestado, marca a requisição com X-Request-Slot e chama o próximo handler
//	5) Ao terminar (sucesso ou falha), devolve o slot
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como SLOTS_MAX, SLOTS_ACQUIRE_TIMEOUT e SLOTS_QUIESCENCE.
package slots
