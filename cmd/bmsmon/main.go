package main

import (
	"flag"
	"log"
	"os"
	"reflect"

	"github.com/robotalks/bms.go/pkg/msgs"
	"github.com/robotalks/bms.go/pkg/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/bms/"
	pattern = "#"
)

func init() {
	if val := os.Getenv("BMS_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&pattern, "topic", pattern, "Topic pattern relative to the URL path.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub(pattern, mqtt.Handler(func(topic string, payload []byte) {
		node, kind, module, err := mqtt.ParseTopic(topic)
		if err != nil {
			log.Printf("%s: %v", topic, err)
			return
		}
		if kind == mqtt.TopicOnline {
			log.Printf("%s: online=%s", node, string(payload))
			return
		}
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeId, err)
			return
		}
		name := reflect.Indirect(reflect.ValueOf(msg)).Type().Name()
		if module >= 0 {
			log.Printf("%s module %d: [%s] %s", node, module, name,
				msg.(msgs.SerializableMessage).Serializable().String())
			return
		}
		log.Printf("%s: [%s] %s", node, name,
			msg.(msgs.SerializableMessage).Serializable().String())
	}))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
