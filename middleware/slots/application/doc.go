// Package application contém os casos de uso da camada de despacho: admissão por
// cliente e empréstimo/devolução de slots com timeout e estatísticas.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: DispatchService.Begin(ctx, req) retorna um Lease com o id emprestado.
package application
