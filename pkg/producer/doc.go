/*
Package producer is the client library for feeding popularity readings into
the Pizza Index ingest endpoint.

# Quick Start

	client, err := producer.New(producer.ClientConfig{
	    Endpoint: "http://localhost:8080/v1/ingest",
	})
	if err != nil {
	    log.Fatal(err)
	}

	client.Start(context.Background())
	defer client.Stop()

	client.Record(producer.Reading("extreme_pizza", time.Now(), 42))

# Batching

Readings are buffered and sent in batches, either every FlushEvery or as soon
as MaxBatchSize readings are waiting. A batch never exceeds the server's
per-request limit.

Batches rejected by the server with a 4xx status are dropped, since resending
the same rows would fail again. Network errors and 5xx responses are retried
with exponential backoff before the batch is dropped. Dropped() reports how
many readings were lost.
*/
package producer
