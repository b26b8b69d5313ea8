// Package redisstream forwards stored events to Redis streams so consumers in
// other processes can follow the log. Events are spread over a fixed number of
// streams by aggregate id, which keeps each stream's events in append order.
package redisstream
