package metrics

import (
	"github.com/google/uuid"
)

type Pool struct {
	Servers map[uuid.UUID]Conn
	Clients map[uuid.UUID]Conn
}

func (T *Pool) ServersByState() (counts [ConnStateCount]int) {
	for _, server := range T.Servers {
		counts[server.State]++
	}
	return
}

func (T *Pool) ClientsByState() (counts [ConnStateCount]int) {
	for _, client := range T.Clients {
		counts[client.State]++
	}
	return
}

func (T *Pool) TransactionCount() int {
	var count int
	for _, server := range T.Servers {
		count += server.TransactionCount
	}
	return count
}

func (T *Pool) QueryCount() int {
	var count int
	for _, server := range T.Servers {
		count += server.QueryCount
	}
	return count
}
