/*
Package mix routes independently timed audio streams through a node graph
to deadline-bound endpoints.

Concept

The graph consists of three kinds of nodes:

    Producer - the origin of frames, backed by a ring buffer or a packet stream;
    Consumer - the destination of frames, writing into an endpoint writer;
    Splitter - copies frames of one source to any number of destinations.

Every consumer and splitter is assigned to a mix thread. A thread wakes
once per period and runs one mix job for every assigned consumer. Output
pipelines run ahead of presentation, input pipelines run behind capture.

Building the graph

Threads and nodes are created first, edges connect them:

    g := mix.NewGraph()
    t, err := g.CreateThread(mix.ThreadOptions{Name: "out", Period: 10 * time.Millisecond})
    p, err := g.CreateProducer(mix.ProducerOptions{Format: f, Reference: ref, Stream: s})
    c, err := g.CreateConsumer(mix.ConsumerOptions{Format: f, Reference: ref, Thread: t.ID(), Writer: w})
    err = g.CreateEdge(p.ID(), c.ID())

Graph methods are safe for concurrent use. They validate the request and
return immediately; stage changes are pushed to the queues of the owning
threads and applied at their next wake.

Execution

Consumers and producers are stopped when created. Start and Stop take a
command with an optional callback which is called on the mix thread when
the command is applied or canceled:

    err = c.Start(stage.StartCommand{})
    err = p.Start(stage.StartCommand{})

Close shuts down all threads.
*/
package mix
