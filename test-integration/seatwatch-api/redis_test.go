package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/stacklok/seatwatch/internal/config"
	"github.com/stacklok/seatwatch/internal/notify/redis"
	"github.com/stacklok/seatwatch/test-integration/seatwatch-api/helpers"
)

var _ = Describe("Redis notification transport", Label("redis", "container"), Ordered, func() {
	var (
		container    *tcredis.RedisContainer
		rdb          *goredis.Client
		registrar    *helpers.Registrar
		serverHelper *helpers.ServerTestHelper

		carol = helpers.User{ID: "carol", Email: "carol@example.edu", Groups: "students"}
	)

	BeforeAll(func() {
		var err error
		container, err = tcredis.Run(ctx, "redis:7-alpine")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(container.Terminate(ctx)).To(Succeed())
		})

		uri, err := container.ConnectionString(ctx)
		Expect(err).NotTo(HaveOccurred())
		opts, err := goredis.ParseURL(uri)
		Expect(err).NotTo(HaveOccurred())
		rdb = goredis.NewClient(opts)
		DeferCleanup(rdb.Close)

		registrar = helpers.NewRegistrar()
		DeferCleanup(registrar.Close)
		registrar.SetSection("24680", helpers.Section{Open: false})

		configFile := helpers.WriteConfigYAML(GinkgoT().TempDir(), helpers.ConfigOptions{
			RegistrarURL: registrar.URL,
			Transport:    config.TransportRedis,
			RedisAddr:    strings.TrimPrefix(uri, "redis://"),
		})
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		DeferCleanup(serverHelper.StopServer)
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	It("stores subscriptions in the topic hash", func() {
		resp, err := serverHelper.Subscribe(carol, "+15550100")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()

		subs, err := rdb.HGetAll(ctx, "course-notifications:subscriptions").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(subs).To(HaveKey("email:carol@example.edu"))
		Expect(subs).To(HaveKey("sms:+15550100"))
	})

	It("publishes an envelope on the channel and the stream when a course opens", func() {
		resp, err := serverHelper.TrackCourse(carol, "24680", 2026, "Spring")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		_ = resp.Body.Close()

		sub := rdb.Subscribe(ctx, "course-notifications")
		DeferCleanup(sub.Close)
		_, err = sub.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())

		registrar.SetSection("24680", helpers.Section{Open: true, Seats: 1})
		summary := serverHelper.RunCycle()
		Expect(summary.NotificationsSent).To(Equal(1))

		var msg *goredis.Message
		Eventually(sub.Channel()).Should(Receive(&msg))
		var env redis.Envelope
		Expect(json.Unmarshal([]byte(msg.Payload), &env)).To(Succeed())
		Expect(env.Attributes).To(HaveKeyWithValue("user_id", "carol"))
		Expect(env.Attributes).To(HaveKeyWithValue("course_id", "24680-2026-Spring"))

		length, err := rdb.XLen(ctx, "course-notifications:stream").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(length).To(Equal(int64(1)))
	})
})
