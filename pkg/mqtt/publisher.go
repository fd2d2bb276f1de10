package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/msgs"
	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// Topics relative to the queue prefix.
const (
	TopicOnline = "online"
	TopicPack   = "pack"
	TopicModule = "module"
)

// ModuleTopic returns the topic of a module snapshot.
func ModuleTopic(node string, module int) string {
	return node + "/" + TopicModule + "/" + strconv.Itoa(module)
}

// PackTopic returns the topic of pack evaluations.
func PackTopic(node string) string {
	return node + "/" + TopicPack
}

// OnlineTopic returns the retained topic of node presence.
func OnlineTopic(node string) string {
	return node + "/" + TopicOnline
}

// ParseTopic splits a relative topic into node, kind and module index.
func ParseTopic(topic string) (node, kind string, module int, err error) {
	items := strings.Split(topic, "/")
	switch {
	case len(items) == 2 && (items[1] == TopicPack || items[1] == TopicOnline):
		return items[0], items[1], -1, nil
	case len(items) == 3 && items[1] == TopicModule:
		module, err = strconv.Atoi(items[2])
		if err == nil && module >= 0 {
			return items[0], TopicModule, module, nil
		}
	}
	return "", "", -1, fmt.Errorf("unknown topic %q", topic)
}

// Publishing is the part of Queue used by Publisher.
type Publishing interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Publisher publishes telemetry of a node. It implements node.Observer
// and never blocks the loop.
type Publisher struct {
	Node  string
	Queue Publishing

	published int
}

// NewPublisher creates a Publisher connected to brokerURL. The broker
// retains "0" on the online topic when the node disappears.
func NewPublisher(brokerURL, node string) (*Publisher, *Queue, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, nil, err
	}
	opts.SetBinaryWill(topicPrefix+OnlineTopic(node), []byte("0"), 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("bms:" + node)
	}
	q := NewQueue(opts, topicPrefix)
	q.OnConnect = func(q *Queue) {
		q.PubWith(OnlineTopic(node), []byte("1"), 1, true)
	}
	return &Publisher{Node: node, Queue: q}, q, nil
}

// ModuleUpdated implements node.Observer.
func (p *Publisher) ModuleUpdated(module int, snap *telemetry.ModuleSnapshot, now time.Time) {
	p.publish(ModuleTopic(p.Node, module), msgs.NewModuleSnapshot(p.Node, module, snap, now))
}

// PackEvaluated implements node.Observer.
func (p *Publisher) PackEvaluated(ensemble *pylon.Ensemble, now time.Time) {
	p.publish(PackTopic(p.Node), msgs.NewPackStatus(p.Node, ensemble, now))
}

// Published returns the number of messages handed to the client.
func (p *Publisher) Published() int {
	return p.published
}

func (p *Publisher) publish(topic string, msg fx.Message) {
	payload, err := msgs.Encode(msg)
	if err != nil {
		glog.Errorf("encode %s: %v", topic, err)
		return
	}
	token := p.Queue.PubWith(topic, payload, 0, false)
	p.published++
	go func() {
		if token.WaitTimeout(time.Second) && token.Error() != nil {
			glog.V(1).Infof("publish %s: %v", topic, token.Error())
		}
	}()
}

// Runner keeps a Queue connected while the loop runs.
type Runner struct {
	Queue *Queue
	// Online is published retained before disconnecting when set.
	Online string
}

// Name implements framework.Named.
func (r *Runner) Name() string {
	return "mqtt"
}

// Run implements framework.Runnable.
func (r *Runner) Run(ctx context.Context) error {
	r.Queue.Connect()
	<-ctx.Done()
	if r.Online != "" {
		r.Queue.PubWith(r.Online, []byte("0"), 1, true).WaitTimeout(time.Second)
	}
	return r.Queue.Close()
}
