package integration

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/monitor"
	"github.com/stacklok/seatwatch/internal/notify"
	"github.com/stacklok/seatwatch/internal/notify/memory"
	"github.com/stacklok/seatwatch/test-integration/seatwatch-api/helpers"
)

var _ = Describe("Seat monitoring", Label("monitor"), func() {
	var (
		registrar    *helpers.Registrar
		transport    *memory.Transport
		serverHelper *helpers.ServerTestHelper

		alice = helpers.User{ID: "alice", Email: "alice@example.edu", Groups: "students"}
		bob   = helpers.User{ID: "bob", Email: "bob@example.edu", Groups: "students"}
		root  = helpers.User{ID: "root", Email: "root@example.edu", Groups: "staff,admin"}
	)

	BeforeEach(func() {
		registrar = helpers.NewRegistrar()
		registrar.SetSection("12345", helpers.Section{Open: false, Seats: 0})
		registrar.SetSection("67890", helpers.Section{Open: true, Seats: 2})

		configFile := helpers.WriteConfigYAML(GinkgoT().TempDir(), helpers.ConfigOptions{
			RegistrarURL: registrar.URL,
		})

		transport = memory.New()
		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile, transport)
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		registrar.Close()
	})

	It("seeds a newly tracked course from the registrar", func() {
		resp, err := serverHelper.TrackCourse(alice, "67890", 2025, "Fall")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		_ = resp.Body.Close()

		resp, err = serverHelper.ListCourses(alice)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var courses []course.TrackedCourse
		helpers.DecodeResponse(resp, &courses)
		Expect(courses).To(HaveLen(1))
		Expect(courses[0].ID).To(Equal("67890-2025-Fall"))
		Expect(courses[0].IsOpen).To(BeTrue())
		Expect(courses[0].SeatsAvailable).To(Equal(2))
	})

	It("notifies every tracker once when a course opens", func() {
		for _, u := range []helpers.User{alice, bob} {
			resp, err := serverHelper.TrackCourse(u, "12345", 2025, "Fall")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			_ = resp.Body.Close()
		}

		By("checking while the course is still closed")
		summary := serverHelper.RunCycle()
		Expect(summary.CoursesChecked).To(Equal(1))
		Expect(summary.CoursesTransitioned).To(Equal(0))
		Expect(summary.Message).To(Equal(monitor.NoTransitionsMessage))
		Expect(transport.Published()).To(BeEmpty())

		By("opening seats at the registrar")
		registrar.SetSection("12345", helpers.Section{Open: true, Seats: 3})
		summary = serverHelper.RunCycle()
		Expect(summary.CoursesTransitioned).To(Equal(1))
		Expect(summary.NotificationsSent).To(Equal(2))

		published := transport.Published()
		Expect(published).To(HaveLen(2))
		recipients := []string{}
		for _, p := range published {
			Expect(p.Topic).To(Equal("course-notifications"))
			Expect(p.Message.Attributes).To(HaveKeyWithValue("course_id", "12345-2025-Fall"))
			recipients = append(recipients, p.Message.Attributes["user_id"])

			var payload notify.Payload
			Expect(json.Unmarshal(p.Message.Body, &payload)).To(Succeed())
			Expect(payload.Course.ClassID).To(Equal("12345-2025-Fall"))
			Expect(payload.Email).To(Equal(p.Message.Attributes["user_id"] + "@example.edu"))
		}
		Expect(recipients).To(ConsistOf("alice", "bob"))

		By("checking again while the course stays open")
		summary = serverHelper.RunCycle()
		Expect(summary.CoursesTransitioned).To(Equal(0))
		Expect(transport.Published()).To(HaveLen(2))
	})

	It("counts an unreachable section as a failed check", func() {
		resp, err := serverHelper.TrackCourse(alice, "12345", 2025, "Fall")
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()

		registrar.SetSection("12345", helpers.Section{Status: http.StatusServiceUnavailable})
		summary := serverHelper.RunCycle()
		Expect(summary.CoursesChecked).To(Equal(1))
		Expect(summary.ChecksFailed).To(Equal(1))
		Expect(transport.Published()).To(BeEmpty())
	})

	It("rejects the scheduler trigger without its token", func() {
		resp, err := serverHelper.TriggerCycle("")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		_ = resp.Body.Close()
	})

	It("restricts manual checks to administrators", func() {
		resp, err := serverHelper.CheckAll(alice)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		_ = resp.Body.Close()

		resp, err = serverHelper.CheckAll(root)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var results []monitor.CheckResult
		helpers.DecodeResponse(resp, &results)
		Expect(results).To(BeEmpty())
	})

	It("subscribes the caller's email", func() {
		resp, err := serverHelper.Subscribe(alice, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()

		subs := transport.Subscriptions("course-notifications")
		Expect(subs).To(HaveLen(1))
		Expect(subs[0].Endpoint).To(Equal("alice@example.edu"))
	})
})
